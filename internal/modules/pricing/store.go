// README: Pricing store reads the rate plans embedded in the vehicle record.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

var ErrVehicleNotFound = apperr.NotFound("VEHICLE_NOT_FOUND", "vehicle not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Entry(ctx context.Context, vehicleID types.ID) (CatalogEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT rate_plans, deposit_amount, currency
		FROM vehicles
		WHERE id = $1 AND active`, string(vehicleID),
	)
	var raw []byte
	var e CatalogEntry
	err := row.Scan(&raw, &e.Deposit, &e.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogEntry{}, ErrVehicleNotFound
	}
	if err != nil {
		return CatalogEntry{}, apperr.External("DB_ERROR", err)
	}
	if err := json.Unmarshal(raw, &e.Plans); err != nil {
		return CatalogEntry{}, fmt.Errorf("decode rate plans for %s: %w", vehicleID, err)
	}
	return e, nil
}

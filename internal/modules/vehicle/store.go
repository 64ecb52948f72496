// README: Vehicle store backed by PostgreSQL; plans and maintenance live in JSONB columns.
package vehicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const vehicleColumns = `
	id, owner_id, name, category, registration_no, zone, currency,
	rate_plans, deposit_amount, required_payment_bps, requires_approval,
	refuel_charge_per_quarter, available, availability_version, active,
	maintenance, created_at, updated_at`

func (s *Store) Create(ctx context.Context, v *Vehicle) error {
	plans, err := json.Marshal(v.Plans)
	if err != nil {
		return err
	}
	maint, err := json.Marshal(v.Maintenance)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO vehicles (`+vehicleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		string(v.ID), string(v.OwnerID), v.Name, v.Category, v.RegistrationNo, v.Zone, v.Currency,
		plans, v.Deposit, v.RequiredPaymentBps, v.RequiresApproval,
		v.RefuelChargePerQuarter, v.Available, v.AvailabilityVersion, v.Active,
		maint, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return apperr.External("DB_ERROR", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Vehicle, error) {
	row := s.db.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, string(id))
	v, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Vehicle, int, error) {
	limit, offset := pageBounds(f.Page, f.Limit)
	where := `WHERE active
		AND ($1 = '' OR zone = $1)
		AND ($2 = '' OR category = $2)
		AND (NOT $3 OR available)`

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles `+where, f.Zone, f.Category, f.AvailableOnly).Scan(&total); err != nil {
		return nil, 0, apperr.External("DB_ERROR", err)
	}
	rows, err := s.db.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles `+where+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		f.Zone, f.Category, f.AvailableOnly, limit, offset)
	if err != nil {
		return nil, 0, apperr.External("DB_ERROR", err)
	}
	defer rows.Close()

	var out []*Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// AppendMaintenance appends one entry to the embedded maintenance history.
func (s *Store) AppendMaintenance(ctx context.Context, id types.ID, e MaintenanceEntry) error {
	raw, err := json.Marshal([]MaintenanceEntry{e})
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE vehicles
		SET maintenance = maintenance || $2::jsonb,
		    updated_at = $3
		WHERE id = $1`, string(id), raw, e.At)
	if err != nil {
		return apperr.External("DB_ERROR", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id types.ID, active bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE vehicles SET active = $2, updated_at = $3 WHERE id = $1`, string(id), active, at)
	if err != nil {
		return apperr.External("DB_ERROR", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	var plans, maint []byte
	err := row.Scan(
		&v.ID, &v.OwnerID, &v.Name, &v.Category, &v.RegistrationNo, &v.Zone, &v.Currency,
		&plans, &v.Deposit, &v.RequiredPaymentBps, &v.RequiresApproval,
		&v.RefuelChargePerQuarter, &v.Available, &v.AvailabilityVersion, &v.Active,
		&maint, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, apperr.External("DB_ERROR", err)
	}
	if err := json.Unmarshal(plans, &v.Plans); err != nil {
		return nil, fmt.Errorf("decode rate plans: %w", err)
	}
	if len(maint) > 0 {
		if err := json.Unmarshal(maint, &v.Maintenance); err != nil {
			return nil, fmt.Errorf("decode maintenance: %w", err)
		}
	}
	return &v, nil
}

func pageBounds(page, limit int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

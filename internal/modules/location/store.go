// README: Location snapshots in Postgres.
package location

import (
	"context"
	"time"

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

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agent_location_snapshots (agent_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.AgentID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	if err != nil {
		return apperr.External("DB_ERROR", err)
	}
	return nil
}

func (s *Store) Track(ctx context.Context, agentID types.ID, from, to time.Time) ([]Snapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, lat, lng, recorded_at FROM agent_location_snapshots
		WHERE agent_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at`, string(agentID), from, to)
	if err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snap := Snapshot{AgentID: agentID}
		if err := rows.Scan(&snap.ID, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt); err != nil {
			return nil, apperr.External("DB_ERROR", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	return out, nil
}

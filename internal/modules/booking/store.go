// README: Booking store backed by PostgreSQL: indexed columns plus the aggregate as JSONB.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

// Repository persists bookings. Update is a compare-and-set on Version: it
// returns false when the stored version no longer equals expected, or when
// an AvailabilityChange loses its own version check.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	Update(ctx context.Context, b *Booking, expected int, avail *AvailabilityChange) (bool, error)
	List(ctx context.Context, f Filter) ([]*Booking, int, error)
	ListNoShowCandidates(ctx context.Context, startedBefore time.Time, limit int) ([]*Booking, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var errStale = errors.New("stale version")

func (s *Store) Create(ctx context.Context, b *Booking) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO bookings (
			id, vehicle_id, renter_id, booked_by, assigned_agent_id, source,
			status, payment_status, refund_status, version,
			start_at, end_at, actual_start_at, created_at, updated_at, doc
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)`,
		string(b.ID), string(b.VehicleID), string(b.RenterID), toStringPtr(b.BookedBy), toStringPtr(b.AssignedAgentID), string(b.Source),
		string(b.Status), string(b.PaymentStatus), string(b.RefundStatus), b.Version,
		b.StartAt, b.EndAt, b.ActualStartAt, b.CreatedAt, b.UpdatedAt, doc,
	)
	if err != nil {
		return apperr.External("DB_ERROR", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	var doc []byte
	var version int
	err := s.db.QueryRow(ctx, `SELECT doc, version FROM bookings WHERE id = $1`, string(id)).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	return decode(doc, version)
}

func (s *Store) Update(ctx context.Context, b *Booking, expected int, avail *AvailabilityChange) (bool, error) {
	next := b.Clone()
	next.Version = expected + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bookings
			SET status = $3,
			    payment_status = $4,
			    refund_status = $5,
			    assigned_agent_id = $6,
			    end_at = $7,
			    actual_start_at = $8,
			    updated_at = $9,
			    doc = $10,
			    version = version + 1
			WHERE id = $1 AND version = $2`,
			string(b.ID), expected,
			string(b.Status), string(b.PaymentStatus), string(b.RefundStatus),
			toStringPtr(b.AssignedAgentID), b.EndAt, b.ActualStartAt, b.UpdatedAt, doc,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return errStale
		}
		if avail == nil {
			return nil
		}
		// The booking row is written first so availability only flips once
		// the handover or return record is in place.
		tag, err = tx.Exec(ctx, `
			UPDATE vehicles
			SET available = $2,
			    availability_version = availability_version + 1,
			    updated_at = $4
			WHERE id = $1 AND availability_version = $3`,
			string(avail.VehicleID), avail.Available, avail.ExpectedVersion, b.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return errStale
		}
		return nil
	})
	if errors.Is(err, errStale) {
		return false, nil
	}
	if err != nil {
		return false, apperr.External("DB_ERROR", err)
	}
	b.Version = expected + 1
	return true, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]*Booking, int, error) {
	where, args := buildWhere(f)
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.External("DB_ERROR", err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	args = append(args, limit, offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT doc, version FROM bookings%s
		ORDER BY start_at DESC, id
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperr.External("DB_ERROR", err)
	}
	out, err := collect(rows)
	return out, total, err
}

func (s *Store) ListNoShowCandidates(ctx context.Context, startedBefore time.Time, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT doc, version FROM bookings
		WHERE status IN ('confirmed', 'ongoing')
		  AND actual_start_at IS NULL
		  AND start_at < $1
		ORDER BY start_at
		LIMIT $2`, startedBefore, limit)
	if err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	return collect(rows)
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if f.AgentID != nil {
		add("(assigned_agent_id = ? OR booked_by = ?)", string(*f.AgentID))
	}
	if f.RenterID != nil {
		add("renter_id = ?", string(*f.RenterID))
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ss[i] = string(st)
		}
		add("status = ANY(?)", ss)
	}
	if f.From != nil {
		add("start_at >= ?", *f.From)
	}
	if f.To != nil {
		add("start_at < ?", *f.To)
	}
	if f.DisputeStatus != "" {
		add("doc->'disputes' @> ?::jsonb", fmt.Sprintf(`[{"status":%q}]`, f.DisputeStatus))
	}
	if f.ExtensionStatus != "" {
		add("doc->'extensions' @> ?::jsonb", fmt.Sprintf(`[{"status":%q}]`, f.ExtensionStatus))
	}
	if f.Unassigned {
		conds = append(conds, "assigned_agent_id IS NULL")
	}
	if f.OfflineOnly {
		conds = append(conds, "source IN ('offline_seller', 'offline_worker')")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collect(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		var doc []byte
		var version int
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, apperr.External("DB_ERROR", err)
		}
		b, err := decode(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	return out, nil
}

func decode(doc []byte, version int) (*Booking, error) {
	var b Booking
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("decode booking: %w", err)
	}
	b.Version = version
	return &b, nil
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

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

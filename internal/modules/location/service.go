// README: Location service handles high-frequency agent updates with throttled snapshot flushing.
package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/logger"
	"vrent/internal/types"
)

var ErrInvalidPosition = apperr.Validation("INVALID_POSITION", "position is not a valid coordinate")

// PositionIndex is the live index the assignment scorer searches.
type PositionIndex interface {
	UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}

type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	Track(ctx context.Context, agentID types.ID, from, to time.Time) ([]Snapshot, error)
}

type Service struct {
	index     PositionIndex
	snapshots SnapshotStore
	interval  time.Duration
	now       func() time.Time
	log       *slog.Logger

	mu        sync.Mutex
	lastFlush map[types.ID]time.Time
}

// NewService flushes at most one snapshot per agent per interval; zero
// interval flushes every update.
func NewService(index PositionIndex, snapshots SnapshotStore, interval time.Duration) *Service {
	return &Service{
		index:     index,
		snapshots: snapshots,
		interval:  interval,
		now:       time.Now,
		log:       logger.WithService("location"),
		lastFlush: make(map[types.ID]time.Time),
	}
}

func (s *Service) Update(ctx context.Context, u Update) error {
	if u.AgentID == "" || !ValidPoint(u.Position) {
		return ErrInvalidPosition
	}
	if u.At.IsZero() {
		u.At = s.now()
	}
	if err := s.index.UpdatePosition(ctx, u.AgentID, u.Position, u.At); err != nil {
		return err
	}
	if !s.due(u.AgentID, u.At) {
		return nil
	}
	// The live index is authoritative; a lost snapshot only thins the trail.
	if err := s.FlushSnapshot(ctx, u); err != nil {
		s.log.WarnContext(ctx, "snapshot flush failed", "agent_id", u.AgentID, "error", err)
	}
	return nil
}

func (s *Service) FlushSnapshot(ctx context.Context, u Update) error {
	return s.snapshots.AppendSnapshot(ctx, Snapshot{
		AgentID:    u.AgentID,
		Position:   u.Position,
		RecordedAt: u.At,
	})
}

func (s *Service) Track(ctx context.Context, agentID types.ID, from, to time.Time) ([]Snapshot, error) {
	if !to.After(from) {
		return nil, apperr.ErrInvalidTimeRange
	}
	return s.snapshots.Track(ctx, agentID, from, to)
}

func (s *Service) due(id types.ID, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastFlush[id]
	if ok && at.Sub(last) < s.interval {
		return false
	}
	s.lastFlush[id] = at
	return true
}

// README: Matching service picks and claims a field agent for a confirmed booking.
package matching

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/config"
	"vrent/internal/logger"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/location"
	"vrent/internal/types"
)

var (
	ErrNoAgentAvailable = apperr.Conflict("NO_AGENT_AVAILABLE", "no agent available, retry later")
	ErrAgentBusy        = apperr.Conflict("AGENT_UNAVAILABLE", "agent is inactive, unavailable or at capacity")
)

// systemActor records automatic assignments in booking history.
var systemActor = booking.Actor{ID: "system:matching", Role: booking.RoleSystem}

type AgentStore interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Agent, error)
	Claim(ctx context.Context, id types.ID, maxJobs int) (bool, error)
	Release(ctx context.Context, id types.ID, maxJobs int) error
}

// DistanceProvider returns road distances from origin to each destination.
type DistanceProvider interface {
	DistancesKm(ctx context.Context, origin types.Point, dests []types.Point) ([]float64, error)
}

type BookingAssigner interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	AssignAgent(ctx context.Context, cmd booking.AssignCommand) (*booking.Booking, error)
	ListUnassigned(ctx context.Context, limit int) ([]*booking.Booking, error)
}

type Service struct {
	store     AgentStore
	bookings  BookingAssigner
	distances DistanceProvider
	cfg       config.MatchingConfig
	log       *slog.Logger
}

// NewService accepts a nil DistanceProvider; straight-line distance is used then.
func NewService(store AgentStore, bookings BookingAssigner, distances DistanceProvider, cfg config.MatchingConfig) *Service {
	return &Service{
		store:     store,
		bookings:  bookings,
		distances: distances,
		cfg:       cfg,
		log:       logger.WithService("matching"),
	}
}

// Candidates loads nearby agents and resolves their distance to p.
func (s *Service) Candidates(ctx context.Context, p types.Point) ([]Candidate, error) {
	agents, err := s.store.Nearby(ctx, p, s.cfg.RadiusKm, s.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, nil
	}
	dist := s.resolveDistances(ctx, p, agents)
	out := make([]Candidate, len(agents))
	for i, a := range agents {
		out[i] = Candidate{Agent: a, DistanceKm: dist[i]}
	}
	return out, nil
}

func (s *Service) resolveDistances(ctx context.Context, p types.Point, agents []Agent) []float64 {
	if s.distances != nil && s.cfg.UseRoadDistance {
		dests := make([]types.Point, len(agents))
		for i, a := range agents {
			dests[i] = a.Position
		}
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		d, err := s.distances.DistancesKm(ctx, p, dests)
		if err == nil && len(d) == len(agents) {
			return d
		}
		s.log.WarnContext(ctx, "road distance unavailable, using straight line", "error", err)
	}
	out := make([]float64, len(agents))
	for i, a := range agents {
		out[i] = location.HaversineKm(p, a.Position)
	}
	return out
}

// AssignBooking selects the best agent for the booking, claims it and
// records the assignment. ErrNoAgentAvailable means retry later.
func (s *Service) AssignBooking(ctx context.Context, bookingID types.ID) (*booking.Booking, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AssignedAgentID != nil {
		return nil, booking.ErrAlreadyAssigned
	}
	candidates, err := s.Candidates(ctx, b.PickupLocation)
	if err != nil {
		return nil, err
	}

	for len(candidates) > 0 {
		best := SelectAgent(candidates, b.RequiredCategory)
		if best == nil {
			break
		}
		ok, err := s.store.Claim(ctx, best.Agent.ID, s.cfg.MaxJobsPerAgent)
		if err != nil && !errors.Is(err, ErrAgentNotFound) {
			return nil, err
		}
		if !ok {
			candidates = without(candidates, best.Agent.ID)
			continue
		}

		assigned, err := s.bookings.AssignAgent(ctx, booking.AssignCommand{
			BookingID: bookingID,
			AgentID:   best.Agent.ID,
			Actor:     systemActor,
		})
		if err != nil {
			if rerr := s.store.Release(ctx, best.Agent.ID, s.cfg.MaxJobsPerAgent); rerr != nil {
				s.log.ErrorContext(ctx, "release after failed assignment", "agent_id", best.Agent.ID, "error", rerr)
			}
			return nil, err
		}
		s.log.InfoContext(ctx, "agent assigned",
			"booking_id", bookingID,
			"agent_id", best.Agent.ID,
			"score", Score(*best, b.RequiredCategory),
			"distance_km", best.DistanceKm,
		)
		return assigned, nil
	}
	return nil, ErrNoAgentAvailable
}

// AssignTo pins the named agent, taking one of its job slots. Naming the
// agent already on the booking is a no-op.
func (s *Service) AssignTo(ctx context.Context, bookingID, agentID types.ID, actor booking.Actor) (*booking.Booking, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AssignedAgentID != nil && *b.AssignedAgentID == agentID {
		return b, nil
	}
	ok, err := s.store.Claim(ctx, agentID, s.cfg.MaxJobsPerAgent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgentBusy.WithMessage("agent %s cannot take another booking", agentID)
	}
	assigned, err := s.bookings.AssignAgent(ctx, booking.AssignCommand{BookingID: bookingID, AgentID: agentID, Actor: actor})
	if err != nil {
		if rerr := s.store.Release(ctx, agentID, s.cfg.MaxJobsPerAgent); rerr != nil {
			s.log.ErrorContext(ctx, "release after failed assignment", "agent_id", agentID, "error", rerr)
		}
		return nil, err
	}
	return assigned, nil
}

// Release returns an agent's job slot once its booking is closed.
func (s *Service) Release(ctx context.Context, agentID types.ID) error {
	return s.store.Release(ctx, agentID, s.cfg.MaxJobsPerAgent)
}

// AssignPending retries assignment for confirmed bookings without an agent.
func (s *Service) AssignPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.bookings.ListUnassigned(ctx, limit)
	if err != nil {
		return 0, err
	}
	assigned := 0
	for _, b := range pending {
		if ctx.Err() != nil {
			return assigned, ctx.Err()
		}
		_, err := s.AssignBooking(ctx, b.ID)
		switch {
		case err == nil:
			assigned++
		case errors.Is(err, ErrNoAgentAvailable), errors.Is(err, booking.ErrConflict),
			errors.Is(err, booking.ErrAlreadyAssigned), errors.Is(err, booking.ErrInvalidState):
			s.log.DebugContext(ctx, "assignment skipped", "booking_id", b.ID, "reason", apperr.CodeOf(err))
		default:
			s.log.WarnContext(ctx, "assignment failed", "booking_id", b.ID, "error", err)
		}
	}
	return assigned, nil
}

func without(cs []Candidate, id types.ID) []Candidate {
	out := cs[:0:0]
	for _, c := range cs {
		if c.Agent.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// README: Agent pool backed by Redis GEO plus one profile hash per agent.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

const (
	agentGeoKey     = "matching:agents"
	agentHashPrefix = "matching:agent:%s"
	// claimAttempts bounds WATCH retries when another assigner races us.
	claimAttempts = 3
)

var ErrAgentNotFound = apperr.NotFound("AGENT_NOT_FOUND", "agent not found")

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) UpsertAgent(ctx context.Context, a Agent) error {
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, agentGeoKey, &redis.GeoLocation{
		Name:      string(a.ID),
		Longitude: a.Position.Lng,
		Latitude:  a.Position.Lat,
	})
	pipe.HSet(ctx, agentKey(a.ID), map[string]any{
		"name":            a.Name,
		"rating":          strconv.FormatFloat(a.Rating, 'f', -1, 64),
		"completed_jobs":  a.CompletedJobs,
		"specializations": strings.Join(a.Specializations, ","),
		"active":          boolField(a.Active),
		"available":       boolField(a.Available),
		"active_jobs":     a.ActiveJobs,
		"device_token":    a.DeviceToken,
		"updated_at":      a.UpdatedAt.UTC().Format(time.RFC3339),
	})
	_, err := pipe.Exec(ctx)
	return wrap(err)
}

// UpdatePosition moves a known agent on the GEO index.
func (s *Store) UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	n, err := s.redis.Exists(ctx, agentKey(id)).Result()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return ErrAgentNotFound
	}
	pipe := s.redis.TxPipeline()
	pipe.GeoAdd(ctx, agentGeoKey, &redis.GeoLocation{Name: string(id), Longitude: p.Lng, Latitude: p.Lat})
	pipe.HSet(ctx, agentKey(id), "updated_at", at.UTC().Format(time.RFC3339))
	_, err = pipe.Exec(ctx)
	return wrap(err)
}

func (s *Store) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	n, err := s.redis.Exists(ctx, agentKey(id)).Result()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return ErrAgentNotFound
	}
	return wrap(s.redis.HSet(ctx, agentKey(id), "available", boolField(available)).Err())
}

func (s *Store) Agent(ctx context.Context, id types.ID) (Agent, error) {
	fields, err := s.redis.HGetAll(ctx, agentKey(id)).Result()
	if err != nil {
		return Agent{}, wrap(err)
	}
	if len(fields) == 0 {
		return Agent{}, ErrAgentNotFound
	}
	a := decodeAgent(id, fields)
	pos, err := s.redis.GeoPos(ctx, agentGeoKey, string(id)).Result()
	if err == nil && len(pos) == 1 && pos[0] != nil {
		a.Position = types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
	}
	return a, nil
}

// Nearby returns up to limit agents within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Agent, error) {
	locs, err := s.redis.GeoSearchLocation(ctx, agentGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(locs) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(locs))
	for i, l := range locs {
		cmds[i] = pipe.HGetAll(ctx, agentKey(types.ID(l.Name)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrap(err)
	}

	agents := make([]Agent, 0, len(locs))
	for i, l := range locs {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		a := decodeAgent(types.ID(l.Name), fields)
		a.Position = types.Point{Lat: l.Latitude, Lng: l.Longitude}
		agents = append(agents, a)
	}
	return agents, nil
}

// Claim takes one job slot on the agent if it is still active, available
// and under maxJobs. It returns false when the agent was taken meanwhile.
func (s *Store) Claim(ctx context.Context, id types.ID, maxJobs int) (bool, error) {
	key := agentKey(id)
	claimed := false
	txf := func(tx *redis.Tx) error {
		claimed = false
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrAgentNotFound
		}
		a := decodeAgent(id, fields)
		if !a.Active || !a.Available || (maxJobs > 0 && a.ActiveJobs >= maxJobs) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, key, "active_jobs", 1)
			if maxJobs > 0 && a.ActiveJobs+1 >= maxJobs {
				pipe.HSet(ctx, key, "available", boolField(false))
			}
			return nil
		})
		if err == nil {
			claimed = true
		}
		return err
	}

	for i := 0; i < claimAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrAgentNotFound) {
			return false, err
		}
		if err != nil {
			return false, wrap(err)
		}
		return claimed, nil
	}
	return false, nil
}

// Release gives back a job slot taken by Claim.
func (s *Store) Release(ctx context.Context, id types.ID, maxJobs int) error {
	key := agentKey(id)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrAgentNotFound
		}
		a := decodeAgent(id, fields)
		if a.ActiveJobs <= 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, key, "active_jobs", -1)
			if maxJobs <= 0 || a.ActiveJobs-1 < maxJobs {
				pipe.HSet(ctx, key, "available", boolField(true))
			}
			return nil
		})
		return err
	}
	for i := 0; i < claimAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrAgentNotFound) {
			return err
		}
		return wrap(err)
	}
	return apperr.ErrVersionConflict
}

// DeviceToken resolves the push token used for driver_assigned messages.
func (s *Store) DeviceToken(ctx context.Context, agentID types.ID) (string, error) {
	tok, err := s.redis.HGet(ctx, agentKey(agentID), "device_token").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrAgentNotFound
	}
	return tok, wrap(err)
}

func decodeAgent(id types.ID, f map[string]string) Agent {
	a := Agent{
		ID:          id,
		Name:        f["name"],
		Active:      f["active"] == "1",
		Available:   f["available"] == "1",
		DeviceToken: f["device_token"],
	}
	a.Rating, _ = strconv.ParseFloat(f["rating"], 64)
	a.CompletedJobs, _ = strconv.Atoi(f["completed_jobs"])
	a.ActiveJobs, _ = strconv.Atoi(f["active_jobs"])
	if s := f["specializations"]; s != "" {
		a.Specializations = strings.Split(s, ",")
	}
	if t, err := time.Parse(time.RFC3339, f["updated_at"]); err == nil {
		a.UpdatedAt = t
	}
	return a
}

func agentKey(id types.ID) string {
	return fmt.Sprintf(agentHashPrefix, string(id))
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return apperr.External("REDIS_ERROR", err)
}

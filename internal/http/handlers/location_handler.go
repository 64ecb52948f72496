// README: Agent handlers: live location, profile, availability and track history.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/booking"
	"vrent/internal/modules/location"
	"vrent/internal/modules/matching"
	"vrent/internal/types"
)

type AgentHandler struct {
	location *location.Service
	agents   *matching.Store
	matching *matching.Service
	now      func() time.Time
}

func NewAgentHandler(loc *location.Service, agents *matching.Store, matchingSvc *matching.Service) *AgentHandler {
	return &AgentHandler{location: loc, agents: agents, matching: matchingSvc, now: time.Now}
}

type locationReq struct {
	Lat float64    `json:"lat"`
	Lng float64    `json:"lng"`
	At  *time.Time `json:"at"`
}

func (h *AgentHandler) UpdateLocation(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	u := location.Update{AgentID: id, Position: types.Point{Lat: req.Lat, Lng: req.Lng}}
	if req.At != nil {
		u.At = *req.At
	}
	if err := h.location.Update(c.Request.Context(), u); err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "ok"})
}

type availabilityReq struct {
	Available bool `json:"available"`
}

func (h *AgentHandler) SetAvailability(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	var req availabilityReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.agents.SetAvailable(c.Request.Context(), id, req.Available); err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"available": req.Available})
}

type upsertAgentReq struct {
	Name            string      `json:"name" binding:"required"`
	Rating          float64     `json:"rating" binding:"gte=0,lte=5"`
	CompletedJobs   int         `json:"completed_jobs" binding:"gte=0"`
	Specializations []string    `json:"specializations"`
	Active          bool        `json:"active"`
	DeviceToken     string      `json:"device_token"`
	Position        types.Point `json:"position"`
}

// Upsert registers or updates an agent profile in the assignment index.
func (h *AgentHandler) Upsert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req upsertAgentReq
	if !bindJSON(c, &req) {
		return
	}
	a := matching.Agent{
		ID:              id,
		Name:            req.Name,
		Rating:          req.Rating,
		CompletedJobs:   req.CompletedJobs,
		Specializations: req.Specializations,
		Active:          req.Active,
		Available:       req.Active,
		DeviceToken:     req.DeviceToken,
		Position:        req.Position,
		UpdatedAt:       h.now(),
	}
	if a.Position != (types.Point{}) && !location.ValidPoint(a.Position) {
		writeAppError(c, location.ErrInvalidPosition)
		return
	}
	if err := h.agents.UpsertAgent(c.Request.Context(), a); err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (h *AgentHandler) Get(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	a, err := h.agents.Agent(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (h *AgentHandler) Track(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	from, to, ok := timeRange(c, h.now())
	if !ok {
		return
	}
	snaps, err := h.location.Track(c.Request.Context(), id, from, to)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"agent_id": id, "snapshots": snaps})
}

// Candidates previews the ranked agents around a point.
func (h *AgentHandler) Candidates(c *gin.Context) {
	var q struct {
		Lat      float64 `form:"lat"`
		Lng      float64 `form:"lng"`
		Category string  `form:"category"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "invalid query")
		return
	}
	p := types.Point{Lat: q.Lat, Lng: q.Lng}
	if !location.ValidPoint(p) {
		writeAppError(c, location.ErrInvalidPosition)
		return
	}
	cands, err := h.matching.Candidates(c.Request.Context(), p)
	if err != nil {
		writeAppError(c, err)
		return
	}
	out := make([]map[string]any, 0, len(cands))
	for _, cand := range cands {
		out = append(out, map[string]any{
			"agent":       cand.Agent,
			"distance_km": cand.DistanceKm,
			"score":       matching.Score(cand, q.Category),
		})
	}
	var best *types.ID
	if sel := matching.SelectAgent(cands, q.Category); sel != nil {
		best = &sel.Agent.ID
	}
	writeJSON(c, http.StatusOK, map[string]any{"candidates": out, "selected": best})
}

// self resolves :id; agents may only act on themselves.
func (h *AgentHandler) self(c *gin.Context) (types.ID, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return "", false
	}
	a := actor(c)
	if a.Role != booking.RoleAdmin && a.ID != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return "", false
	}
	return id, true
}

// README: Booking handlers: create, read, lifecycle transitions and handover.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vrent/internal/maps"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/matching"
	"vrent/internal/modules/pricing"
	"vrent/internal/modules/tripmeter"
	"vrent/internal/types"
)

// AddressResolver geocodes a pickup address typed at the counter.
type AddressResolver interface {
	Resolve(ctx context.Context, address string, near *types.Point) (maps.Place, error)
}

type BookingHandler struct {
	bookings *booking.Service
	matching *matching.Service
	places   AddressResolver
	now      func() time.Time
}

// NewBookingHandler accepts a nil places resolver; pickup addresses are then
// rejected and callers must send coordinates.
func NewBookingHandler(bookings *booking.Service, matchingSvc *matching.Service, places AddressResolver) *BookingHandler {
	return &BookingHandler{bookings: bookings, matching: matchingSvc, places: places, now: time.Now}
}

type createBookingReq struct {
	VehicleID        string            `json:"vehicle_id" binding:"required"`
	RenterID         string            `json:"renter_id"`
	Source           booking.Source    `json:"source"`
	StartAt          time.Time         `json:"start_at"`
	EndAt            time.Time         `json:"end_at"`
	RateType         pricing.RateType  `json:"rate_type" binding:"required"`
	FuelIncluded     bool              `json:"fuel_included"`
	Addons           []pricing.Addon   `json:"addons" binding:"dive"`
	Discount         *pricing.Discount `json:"discount"`
	PickupLat        float64           `json:"pickup_lat"`
	PickupLng        float64           `json:"pickup_lng"`
	PickupAddress    string            `json:"pickup_address"`
	RequiredCategory string            `json:"required_category"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	cmd := booking.CreateCommand{
		VehicleID:        types.ID(req.VehicleID),
		RenterID:         a.ID,
		Source:           booking.SourceOnline,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,
		RateType:         req.RateType,
		FuelIncluded:     req.FuelIncluded,
		Addons:           req.Addons,
		Discount:         req.Discount,
		PickupLocation:   types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		RequiredCategory: req.RequiredCategory,
		Actor:            a,
	}
	// Staff book on behalf of a walk-in renter.
	if a.Staff() {
		if req.RenterID == "" {
			writeError(c, http.StatusBadRequest, "renter_id is required")
			return
		}
		by := a.ID
		cmd.RenterID = types.ID(req.RenterID)
		cmd.BookedBy = &by
		cmd.Source = req.Source
		if cmd.Source == "" {
			cmd.Source = booking.SourceOfflineWorker
		}
	}
	if req.PickupAddress != "" && req.PickupLat == 0 && req.PickupLng == 0 {
		if h.places == nil {
			writeError(c, http.StatusBadRequest, "pickup_lat and pickup_lng are required")
			return
		}
		place, err := h.places.Resolve(c.Request.Context(), req.PickupAddress, nil)
		if err != nil {
			writeAppError(c, err)
			return
		}
		cmd.PickupLocation = place.Position
	}
	b, err := h.bookings.Create(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, view(b, a))
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, ok := h.load(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, view(b, actor(c)))
}

// List returns the caller's own bookings; staff may filter by status or renter.
func (h *BookingHandler) List(c *gin.Context) {
	a := actor(c)
	page, limit := pageParams(c)
	f := booking.Filter{Page: page, Limit: limit}
	for _, s := range c.QueryArray("status") {
		f.Statuses = append(f.Statuses, booking.Status(s))
	}
	switch a.Role {
	case booking.RoleRenter:
		f.RenterID = &a.ID
	case booking.RoleAgent:
		f.AgentID = &a.ID
	default:
		if v := c.Query("renter_id"); v != "" {
			id := types.ID(v)
			f.RenterID = &id
		}
		f.Unassigned = c.Query("unassigned") == "true"
		f.OfflineOnly = c.Query("offline") == "true"
	}
	items, total, err := h.bookings.List(c.Request.Context(), f)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, listResponse[*booking.Booking]{Items: views(items, a), Total: total, Page: page, Limit: limit})
}

// AgentSchedule lists the jobs assigned to an agent in a time window.
func (h *BookingHandler) AgentSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a := actor(c)
	if a.Role == booking.RoleAgent && a.ID != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return
	}
	from, to, ok := timeRange(c, h.now())
	if !ok {
		return
	}
	page, limit := pageParams(c)
	items, total, err := h.bookings.ListByAgent(c.Request.Context(), id, from, to, page, limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, listResponse[*booking.Booking]{Items: views(items, a), Total: total, Page: page, Limit: limit})
}

type transitionReq struct {
	Note string `json:"note"`
}

func (h *BookingHandler) Confirm(c *gin.Context) {
	h.transition(c, h.bookings.Confirm)
}

func (h *BookingHandler) Approve(c *gin.Context) {
	h.transition(c, h.bookings.Approve)
}

func (h *BookingHandler) NoShow(c *gin.Context) {
	h.transition(c, h.bookings.MarkNoShow)
}

func (h *BookingHandler) transition(c *gin.Context, fn func(ctx context.Context, cmd booking.TransitionCommand) (*booking.Booking, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := fn(c.Request.Context(), booking.TransitionCommand{BookingID: id, Actor: a, Note: req.Note})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{BookingID: id, Reason: req.Reason, Actor: a})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type handoverReq struct {
	Code      string            `json:"code" binding:"required"`
	Odometer  int64             `json:"odometer" binding:"gte=0"`
	Fuel      booking.FuelLevel `json:"fuel"`
	Condition string            `json:"condition"`
	Notes     string            `json:"notes"`
	Photos    []string          `json:"photos"`
}

func (r handoverReq) command(id types.ID, a booking.Actor) booking.HandoverCommand {
	return booking.HandoverCommand{
		BookingID: id,
		Code:      r.Code,
		Odometer:  r.Odometer,
		Fuel:      r.Fuel,
		Condition: r.Condition,
		Notes:     r.Notes,
		Photos:    r.Photos,
		Actor:     a,
	}
}

func (h *BookingHandler) Pickup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req handoverReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := h.bookings.Pickup(c.Request.Context(), req.command(id, a))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type returnReq struct {
	handoverReq
	Charges  pricing.Charges `json:"charges"`
	Override *struct {
		Km     int64  `json:"km" binding:"gte=0"`
		Reason string `json:"reason" binding:"required"`
	} `json:"odometer_override"`
}

func (h *BookingHandler) Return(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req returnReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	cmd := booking.ReturnCommand{HandoverCommand: req.command(id, a), Charges: req.Charges}
	if req.Override != nil {
		cmd.Override = &tripmeter.ManualOverride{Km: req.Override.Km, Reason: req.Override.Reason, By: a.ID, At: h.now()}
	}
	b, err := h.bookings.Return(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type assignReq struct {
	AgentID string `json:"agent_id"`
}

// Assign pins an agent chosen by an admin, or runs the scorer when no agent
// is named.
func (h *BookingHandler) Assign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	var (
		b   *booking.Booking
		err error
	)
	switch {
	case req.AgentID != "" && h.matching != nil:
		b, err = h.matching.AssignTo(c.Request.Context(), id, types.ID(req.AgentID), a)
	case req.AgentID != "":
		b, err = h.bookings.AssignAgent(c.Request.Context(), booking.AssignCommand{BookingID: id, AgentID: types.ID(req.AgentID), Actor: a})
	case h.matching == nil:
		writeError(c, http.StatusServiceUnavailable, "automatic assignment is not configured")
		return
	default:
		b, err = h.matching.AssignBooking(c.Request.Context(), id)
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

// load fetches the booking named by :id and enforces renter ownership.
func (h *BookingHandler) load(c *gin.Context) (*booking.Booking, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	b, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return nil, false
	}
	if a := actor(c); a.Role == booking.RoleRenter && b.RenterID != a.ID {
		writeAppError(c, booking.ErrForbidden)
		return nil, false
	}
	return b, true
}

// view hides the verification codes from agents; they must hear them from
// the renter at the counter.
func view(b *booking.Booking, a booking.Actor) *booking.Booking {
	if b == nil || a.Role != booking.RoleAgent {
		return b
	}
	cp := *b
	cp.Codes = booking.Codes{}
	return &cp
}

func views(items []*booking.Booking, a booking.Actor) []*booking.Booking {
	out := make([]*booking.Booking, len(items))
	for i, b := range items {
		out[i] = view(b, a)
	}
	return out
}

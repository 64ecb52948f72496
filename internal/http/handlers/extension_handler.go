// README: Extension handlers: request, decide, pay and the staff review queue.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/booking"
	"vrent/internal/modules/extension"
)

type ExtensionHandler struct {
	extensions *extension.Service
}

func NewExtensionHandler(svc *extension.Service) *ExtensionHandler {
	return &ExtensionHandler{extensions: svc}
}

type requestExtensionReq struct {
	NewEndAt time.Time `json:"new_end_at"`
	Reason   string    `json:"reason"`
}

func (h *ExtensionHandler) Request(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req requestExtensionReq
	if !bindJSON(c, &req) {
		return
	}
	ext, err := h.extensions.Request(c.Request.Context(), extension.RequestCommand{
		BookingID: id,
		NewEndAt:  req.NewEndAt,
		Reason:    req.Reason,
		Actor:     actor(c),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, ext)
}

type decideExtensionReq struct {
	Reason string `json:"reason"`
}

func (h *ExtensionHandler) Approve(c *gin.Context) {
	h.decide(c, h.extensions.Approve)
}

func (h *ExtensionHandler) Reject(c *gin.Context) {
	h.decide(c, h.extensions.Reject)
}

func (h *ExtensionHandler) decide(c *gin.Context, fn func(ctx context.Context, cmd extension.DecideCommand) (*booking.Booking, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	extID, ok := pathID(c, "ext")
	if !ok {
		return
	}
	var req decideExtensionReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := fn(c.Request.Context(), extension.DecideCommand{BookingID: id, ExtensionID: extID, Reason: req.Reason, Actor: a})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type payExtensionReq struct {
	Amount       int64              `json:"amount" binding:"required,gt=0"`
	Instrument   booking.Instrument `json:"instrument" binding:"required"`
	ProcessorRef string             `json:"processor_ref"`
}

func (h *ExtensionHandler) Pay(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	extID, ok := pathID(c, "ext")
	if !ok {
		return
	}
	var req payExtensionReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := h.extensions.Pay(c.Request.Context(), extension.PayCommand{
		BookingID:    id,
		ExtensionID:  extID,
		Amount:       req.Amount,
		Instrument:   req.Instrument,
		ProcessorRef: req.ProcessorRef,
		Actor:        a,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

// Pending lists bookings with an extension waiting on staff.
func (h *ExtensionHandler) Pending(c *gin.Context) {
	page, limit := pageParams(c)
	items, total, err := h.extensions.ListPending(c.Request.Context(), page, limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, listResponse[*booking.Booking]{Items: views(items, actor(c)), Total: total, Page: page, Limit: limit})
}

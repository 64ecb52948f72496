// README: Dispute and refund handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/booking"
)

type DisputeHandler struct {
	bookings *booking.Service
}

func NewDisputeHandler(svc *booking.Service) *DisputeHandler {
	return &DisputeHandler{bookings: svc}
}

type raiseDisputeReq struct {
	Type        booking.DisputeType `json:"type" binding:"required"`
	Description string              `json:"description" binding:"required"`
	Evidence    []string            `json:"evidence"`
}

func (h *DisputeHandler) Raise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req raiseDisputeReq
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.bookings.RaiseDispute(c.Request.Context(), booking.DisputeCommand{
		BookingID:   id,
		Type:        req.Type,
		Description: req.Description,
		Evidence:    req.Evidence,
		Actor:       actor(c),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

type resolveDisputeReq struct {
	Status     booking.DisputeStatus `json:"status" binding:"required"`
	Resolution string                `json:"resolution"`
}

func (h *DisputeHandler) Resolve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	disputeID, ok := pathID(c, "dispute")
	if !ok {
		return
	}
	var req resolveDisputeReq
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.bookings.ResolveDispute(c.Request.Context(), booking.ResolveDisputeCommand{
		BookingID:  id,
		DisputeID:  disputeID,
		Status:     req.Status,
		Resolution: req.Resolution,
		Actor:      actor(c),
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DisputeHandler) Open(c *gin.Context) {
	page, limit := pageParams(c)
	items, total, err := h.bookings.ListOpenDisputes(c.Request.Context(), page, limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, listResponse[*booking.Booking]{Items: views(items, actor(c)), Total: total, Page: page, Limit: limit})
}

type refundReq struct {
	Reason string `json:"reason" binding:"required"`
	Amount int64  `json:"amount" binding:"gte=0"`
}

func (h *DisputeHandler) RequestRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := h.bookings.RequestRefund(c.Request.Context(), booking.RefundRequestCommand{
		BookingID: id, Reason: req.Reason, Amount: req.Amount, Actor: a,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type refundDecisionReq struct {
	Approve bool   `json:"approve"`
	Amount  int64  `json:"amount" binding:"gte=0"`
	Notes   string `json:"notes"`
}

func (h *DisputeHandler) DecideRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundDecisionReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := h.bookings.DecideRefund(c.Request.Context(), booking.RefundDecisionCommand{
		BookingID: id, Approve: req.Approve, Amount: req.Amount, Notes: req.Notes, Actor: a,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

type processRefundReq struct {
	Method       booking.Instrument `json:"method" binding:"required"`
	ProcessorRef string             `json:"processor_ref"`
}

func (h *DisputeHandler) ProcessRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req processRefundReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	b, err := h.bookings.ProcessRefund(c.Request.Context(), booking.ProcessRefundCommand{
		BookingID: id, Method: req.Method, ProcessorRef: req.ProcessorRef, Actor: a,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view(b, a))
}

// README: Payment handlers: processor callback and staff-recorded payments.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/booking"
	"vrent/internal/types"
)

type PaymentHandler struct {
	bookings *booking.Service
}

func NewPaymentHandler(svc *booking.Service) *PaymentHandler {
	return &PaymentHandler{bookings: svc}
}

type paymentReq struct {
	BookingID    string                 `json:"booking_id"`
	Amount       int64                  `json:"amount" binding:"required,gt=0"`
	Instrument   booking.Instrument     `json:"instrument" binding:"required"`
	ProcessorRef string                 `json:"processor_ref"`
	Status       booking.PaymentState   `json:"status"`
	Purpose      booking.PaymentPurpose `json:"purpose"`
}

// Callback applies a processor notification. Replays with the same reference
// and status are answered with the stored payment.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req paymentReq
	if !bindJSON(c, &req) {
		return
	}
	if !types.ValidID(req.BookingID) || req.ProcessorRef == "" {
		writeError(c, http.StatusBadRequest, "booking_id and processor_ref are required")
		return
	}
	p, err := h.bookings.RecordPayment(c.Request.Context(), booking.PaymentCommand{
		BookingID:    types.ID(req.BookingID),
		Amount:       req.Amount,
		Instrument:   req.Instrument,
		ProcessorRef: req.ProcessorRef,
		Status:       req.Status,
		Purpose:      req.Purpose,
		Actor:        booking.SystemActor,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// Record lets counter staff log a payment taken outside the processor.
func (h *PaymentHandler) Record(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req paymentReq
	if !bindJSON(c, &req) {
		return
	}
	a := actor(c)
	cmd := booking.PaymentCommand{
		BookingID:    id,
		Amount:       req.Amount,
		Instrument:   req.Instrument,
		ProcessorRef: req.ProcessorRef,
		Status:       req.Status,
		Purpose:      req.Purpose,
		Actor:        a,
	}
	if req.Instrument == booking.InstrumentCash {
		by := a.ID
		cmd.CollectedBy = &by
	}
	p, err := h.bookings.RecordPayment(c.Request.Context(), cmd)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

// README: Offline cash handlers: collections, handovers and reconciliation exports.
package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/booking"
	"vrent/internal/modules/cashflow"
	"vrent/internal/report"
	"vrent/internal/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type CashHandler struct {
	cash *cashflow.Service
	loc  *time.Location
	now  func() time.Time
}

func NewCashHandler(svc *cashflow.Service, loc *time.Location) *CashHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CashHandler{cash: svc, loc: loc, now: time.Now}
}

type collectReq struct {
	CollectionID string `json:"collection_id"`
	Cash         int64  `json:"cash" binding:"gte=0"`
	Online       int64  `json:"online" binding:"gte=0"`
	OnlineRef    string `json:"online_ref"`
}

func (h *CashHandler) Collect(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req collectReq
	if !bindJSON(c, &req) {
		return
	}
	if req.CollectionID != "" && !types.ValidID(req.CollectionID) {
		writeError(c, http.StatusBadRequest, "invalid collection_id")
		return
	}
	details, err := h.cash.RecordCollection(c.Request.Context(), cashflow.CollectionCommand{
		BookingID:    id,
		CollectionID: types.ID(req.CollectionID),
		Cash:         req.Cash,
		Online:       req.Online,
		OnlineRef:    req.OnlineRef,
		Actor:        actor(c),
	})
	if err != nil {
		// The booking side may have committed before the ledger failed.
		if details != nil {
			writeJSON(c, http.StatusAccepted, gin.H{"cash_flow": details, "warning": err.Error()})
			return
		}
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, details)
}

type handOverReq struct {
	ReceiptNo string `json:"receipt_no" binding:"required"`
}

func (h *CashHandler) HandOver(c *gin.Context) {
	agentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req handOverReq
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.cash.HandOver(c.Request.Context(), cashflow.HandOverCommand{AgentID: agentID, ReceiptNo: req.ReceiptNo, Actor: actor(c)})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, e)
}

func (h *CashHandler) Balance(c *gin.Context) {
	agentID, ok := h.agentParam(c)
	if !ok {
		return
	}
	b, err := h.cash.Balance(c.Request.Context(), agentID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"balance": b, "on_hand": b.OnHand()})
}

func (h *CashHandler) Reconcile(c *gin.Context) {
	agentID, ok := h.agentParam(c)
	if !ok {
		return
	}
	from, to, ok := timeRange(c, h.now())
	if !ok {
		return
	}
	r, err := h.cash.Reconcile(c.Request.Context(), agentID, from, to)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Export streams the reconciliation of every agent as an xlsx workbook.
func (h *CashHandler) Export(c *gin.Context) {
	from, to, ok := timeRange(c, h.now())
	if !ok {
		return
	}
	reports, err := h.cash.ReconcileAll(c.Request.Context(), from, to)
	if err != nil {
		writeAppError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCashReconciliation(&buf, reports, h.loc); err != nil {
		writeAppError(c, err)
		return
	}
	name := fmt.Sprintf("cash-%s-%s.xlsx", from.In(h.loc).Format("20060102"), to.In(h.loc).Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// agentParam resolves :id; agents may only read their own ledger.
func (h *CashHandler) agentParam(c *gin.Context) (types.ID, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return "", false
	}
	if a := actor(c); a.Role != booking.RoleAdmin && a.ID != id {
		writeAppError(c, booking.ErrForbidden)
		return "", false
	}
	return id, true
}

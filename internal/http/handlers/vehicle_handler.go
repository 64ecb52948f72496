// README: Vehicle catalogue handlers and the public price quote.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/pricing"
	"vrent/internal/modules/vehicle"
	"vrent/internal/types"
)

type VehicleHandler struct {
	vehicles *vehicle.Service
	pricing  *pricing.Service
}

func NewVehicleHandler(vehicles *vehicle.Service, pricingSvc *pricing.Service) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles, pricing: pricingSvc}
}

type createVehicleReq struct {
	OwnerID                string            `json:"owner_id" binding:"required"`
	Name                   string            `json:"name" binding:"required"`
	Category               string            `json:"category" binding:"required"`
	RegistrationNo         string            `json:"registration_no" binding:"required"`
	Zone                   string            `json:"zone"`
	Plans                  pricing.RatePlans `json:"rate_plans"`
	Deposit                int64             `json:"deposit"`
	RequiredPaymentBps     int64             `json:"required_payment_bps"`
	RequiresApproval       bool              `json:"requires_approval"`
	RefuelChargePerQuarter int64             `json:"refuel_charge_per_quarter"`
}

func (h *VehicleHandler) Create(c *gin.Context) {
	var req createVehicleReq
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.vehicles.Create(c.Request.Context(), vehicle.CreateCommand{
		OwnerID:                types.ID(req.OwnerID),
		Name:                   req.Name,
		Category:               req.Category,
		RegistrationNo:         req.RegistrationNo,
		Zone:                   req.Zone,
		Plans:                  req.Plans,
		Deposit:                req.Deposit,
		RequiredPaymentBps:     req.RequiredPaymentBps,
		RequiresApproval:       req.RequiresApproval,
		RefuelChargePerQuarter: req.RefuelChargePerQuarter,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, v)
}

func (h *VehicleHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	v, err := h.vehicles.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (h *VehicleHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	items, total, err := h.vehicles.List(c.Request.Context(), vehicle.ListFilter{
		Zone:          c.Query("zone"),
		Category:      c.Query("category"),
		AvailableOnly: c.Query("available") == "true",
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, listResponse[*vehicle.Vehicle]{Items: items, Total: total, Page: page, Limit: limit})
}

func (h *VehicleHandler) AddMaintenance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var e vehicle.MaintenanceEntry
	if !bindJSON(c, &e) {
		return
	}
	e.By = actor(c).ID
	if err := h.vehicles.AddMaintenance(c.Request.Context(), id, e); err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, e)
}

type activeReq struct {
	Active bool `json:"active"`
}

func (h *VehicleHandler) SetActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req activeReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.vehicles.SetActive(c.Request.Context(), id, req.Active); err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"active": req.Active})
}

type quoteReq struct {
	Start        time.Time         `json:"start_at"`
	End          time.Time         `json:"end_at"`
	RateType     pricing.RateType  `json:"rate_type" binding:"required"`
	FuelIncluded bool              `json:"fuel_included"`
	Addons       []pricing.Addon   `json:"addons" binding:"dive"`
	Discount     *pricing.Discount `json:"discount"`
}

// Quote prices a window on the vehicle without reserving it.
func (h *VehicleHandler) Quote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req quoteReq
	if !bindJSON(c, &req) {
		return
	}
	q, err := h.pricing.Quote(c.Request.Context(), pricing.QuoteRequest{
		VehicleID:    id,
		Start:        req.Start,
		End:          req.End,
		RateType:     req.RateType,
		FuelIncluded: req.FuelIncluded,
		Addons:       req.Addons,
		Discount:     req.Discount,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

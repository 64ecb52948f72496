// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vrent/internal/http/handlers"
	"vrent/internal/http/middleware"
)

const (
	roleAgent = "agent"
	roleAdmin = "admin"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				c.String(http.StatusServiceUnavailable, "NOT READY")
				return
			}
		}
		c.String(http.StatusOK, "OK")
	})

	payments := handlers.NewPaymentHandler(deps.Bookings)
	r.POST("/api/payments/callback", middleware.CallbackSecret(deps.CallbackSecret), payments.Callback)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	staff := middleware.RequireRole(roleAgent, roleAdmin)
	admin := middleware.RequireRole(roleAdmin)

	vehicles := handlers.NewVehicleHandler(deps.Vehicles, deps.Pricing)
	api.GET("/vehicles", vehicles.List)
	api.GET("/vehicles/:id", vehicles.Get)
	api.POST("/vehicles/:id/quote", vehicles.Quote)
	api.POST("/vehicles", admin, vehicles.Create)
	api.POST("/vehicles/:id/maintenance", staff, vehicles.AddMaintenance)
	api.PUT("/vehicles/:id/active", admin, vehicles.SetActive)

	bookings := handlers.NewBookingHandler(deps.Bookings, deps.Matching, deps.Places)
	api.POST("/bookings", bookings.Create)
	api.GET("/bookings", bookings.List)
	api.GET("/bookings/:id", bookings.Get)
	api.POST("/bookings/:id/confirm", bookings.Confirm)
	api.POST("/bookings/:id/cancel", bookings.Cancel)
	api.POST("/bookings/:id/approve", staff, bookings.Approve)
	api.POST("/bookings/:id/pickup", staff, bookings.Pickup)
	api.POST("/bookings/:id/return", staff, bookings.Return)
	api.POST("/bookings/:id/no-show", staff, bookings.NoShow)
	api.POST("/bookings/:id/assign", admin, bookings.Assign)
	api.POST("/bookings/:id/payments", staff, payments.Record)

	extensions := handlers.NewExtensionHandler(deps.Extensions)
	api.POST("/bookings/:id/extensions", extensions.Request)
	api.POST("/bookings/:id/extensions/:ext/pay", extensions.Pay)
	api.POST("/bookings/:id/extensions/:ext/approve", staff, extensions.Approve)
	api.POST("/bookings/:id/extensions/:ext/reject", staff, extensions.Reject)
	api.GET("/extensions/pending", staff, extensions.Pending)

	disputes := handlers.NewDisputeHandler(deps.Bookings)
	api.POST("/bookings/:id/disputes", disputes.Raise)
	api.POST("/bookings/:id/disputes/:dispute/resolve", admin, disputes.Resolve)
	api.GET("/disputes", admin, disputes.Open)
	api.POST("/bookings/:id/refund", disputes.RequestRefund)
	api.POST("/bookings/:id/refund/decision", admin, disputes.DecideRefund)
	api.POST("/bookings/:id/refund/process", admin, disputes.ProcessRefund)

	mediaHandler := handlers.NewMediaHandler(deps.Media, deps.Bookings)
	api.POST("/bookings/:id/media", mediaHandler.Upload)

	cash := handlers.NewCashHandler(deps.Cash, deps.Location)
	api.POST("/bookings/:id/collections", staff, cash.Collect)
	api.GET("/agents/:id/cash", staff, cash.Balance)
	api.GET("/agents/:id/cash/reconcile", staff, cash.Reconcile)
	api.POST("/agents/:id/cash/handover", admin, cash.HandOver)
	api.GET("/reports/cash.xlsx", admin, cash.Export)

	agents := handlers.NewAgentHandler(deps.Locations, deps.Agents, deps.Matching)
	api.PUT("/agents/:id", admin, agents.Upsert)
	api.GET("/agents/:id", staff, agents.Get)
	api.PUT("/agents/:id/location", staff, agents.UpdateLocation)
	api.PUT("/agents/:id/availability", staff, agents.SetAvailability)
	api.GET("/agents/:id/track", staff, agents.Track)
	api.GET("/agents/:id/schedule", staff, bookings.AgentSchedule)
	api.GET("/matching/candidates", admin, agents.Candidates)

	return r
}

// README: API gateway; owns the HTTP server and its graceful shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vrent/internal/http/handlers"
	"vrent/internal/infra"
	"vrent/internal/logger"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/cashflow"
	"vrent/internal/modules/extension"
	"vrent/internal/modules/location"
	"vrent/internal/modules/matching"
	"vrent/internal/modules/media"
	"vrent/internal/modules/pricing"
	"vrent/internal/modules/vehicle"
)

type ServerDeps struct {
	Verifier       infra.TokenVerifier
	CallbackSecret string
	Location       *time.Location

	Bookings   *booking.Service
	Extensions *extension.Service
	Cash       *cashflow.Service
	Vehicles   *vehicle.Service
	Pricing    *pricing.Service
	Matching   *matching.Service
	Agents     *matching.Store
	Locations  *location.Service
	Media      *media.Service
	// Places is optional; without it pickup addresses are not geocoded.
	Places handlers.AddressResolver

	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	srv *http.Server
}

func NewServer(addr string, deps ServerDeps) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

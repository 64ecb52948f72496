// README: Process wiring shared by the API server and the ops CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"vrent/internal/config"
	apihttp "vrent/internal/http"
	"vrent/internal/infra"
	"vrent/internal/jobs"
	"vrent/internal/logger"
	"vrent/internal/maps"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/cashflow"
	"vrent/internal/modules/extension"
	"vrent/internal/modules/location"
	"vrent/internal/modules/matching"
	"vrent/internal/modules/media"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/modules/vehicle"
)

const mapsRegion = "in"

type App struct {
	Config   config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Firebase *infra.Firebase

	Notifier   *notify.Dispatcher
	Vehicles   *vehicle.Service
	Pricing    *pricing.Service
	Bookings   *booking.Service
	Extensions *extension.Service
	Cash       *cashflow.Service
	Agents     *matching.Store
	Matching   *matching.Service
	Locations  *location.Service
	// Media is nil when no storage bucket is configured.
	Media *media.Service
	// Places is nil without a maps API key.
	Places *maps.PlacesService
	Jobs   *jobs.JobRunner
}

// New connects to Postgres and Redis and builds every service. Firebase is
// optional: without a project id there is no push delivery and no uploads.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a := &App{Config: cfg, DB: db, Redis: rdb}

	a.Agents = matching.NewStore(rdb)
	publishers := []notify.Publisher{notify.NewRedisPublisher(rdb, cfg.Notify.Channel)}

	if cfg.Firebase.ProjectID != "" {
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.StorageBucket)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Firebase = fb
		msg, err := fb.Messaging(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		publishers = append(publishers, notify.NewFCMPublisher(msg, a.Agents))
		if cfg.Firebase.StorageBucket != "" {
			bucket, err := fb.Bucket(ctx)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.Media = media.NewService(media.NewGCSStore(bucket, cfg.Firebase.StorageBucket))
		}
	} else {
		logger.Warn("firebase not configured; push notifications and uploads are disabled")
	}
	a.Notifier = notify.NewDispatcher(cfg.Notify.QueueSize, publishers...)

	loc := cfg.Location()
	a.Vehicles = vehicle.NewService(vehicle.NewStore(db), cfg.Billing.Currency)
	a.Pricing = pricing.NewService(pricing.NewStore(db), cfg.Billing, loc)

	bookingStore := booking.NewStore(db)
	a.Bookings = booking.NewService(bookingStore, a.Vehicles, a.Pricing, a.Notifier, booking.PolicyFromConfig(cfg.Booking))
	a.Extensions = extension.NewService(bookingStore, a.Vehicles, a.Pricing, a.Notifier, cfg.Booking.ExtensionPaymentGrace())
	a.Cash = cashflow.NewService(bookingStore, cashflow.NewStore(db), a.Notifier, cfg.Billing, cfg.Booking)
	a.Bookings.SetCashLedger(a.Cash)
	a.Extensions.SetCashLedger(a.Cash)

	var distances matching.DistanceProvider
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, mapsRegion)
		if err != nil {
			a.Close()
			return nil, err
		}
		distances = routes
		if a.Places, err = maps.NewPlacesService(cfg.Maps.APIKey, mapsRegion); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Matching = matching.NewService(a.Agents, a.Bookings, distances, cfg.Matching)
	a.Bookings.SetAgentReleaser(a.Matching)
	a.Locations = location.NewService(a.Agents, location.NewStore(db), time.Duration(cfg.Matching.SnapshotInterval)*time.Second)

	a.Jobs = jobs.NewJobRunner(jobs.Services{
		Bookings:   a.Bookings,
		Extensions: a.Extensions,
		Matching:   a.Matching,
	}, time.Minute)
	return a, nil
}

// ServerDeps needs Firebase for token verification.
func (a *App) ServerDeps(ctx context.Context) (apihttp.ServerDeps, error) {
	if a.Firebase == nil {
		return apihttp.ServerDeps{}, fmt.Errorf("VRENT_FIREBASE_PROJECT_ID is required to serve the API")
	}
	verifier, err := a.Firebase.Verifier(ctx)
	if err != nil {
		return apihttp.ServerDeps{}, err
	}
	deps := apihttp.ServerDeps{
		Verifier:       verifier,
		CallbackSecret: a.Config.Payment.CallbackSecret,
		Location:       a.Config.Location(),
		Bookings:       a.Bookings,
		Extensions:     a.Extensions,
		Cash:           a.Cash,
		Vehicles:       a.Vehicles,
		Pricing:        a.Pricing,
		Matching:       a.Matching,
		Agents:         a.Agents,
		Locations:      a.Locations,
		Media:          a.Media,
		Ready:          a.Ready,
	}
	if a.Places != nil {
		deps.Places = a.Places
	}
	return deps, nil
}

func (a *App) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.DB.Ping(ctx); err != nil {
		return err
	}
	return a.Redis.Ping(ctx).Err()
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// README: Vehicle service validates catalog entries and serves read access to other modules.
package vehicle

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"vrent/internal/apperr"
	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

var (
	ErrNotFound       = pricing.ErrVehicleNotFound
	ErrInvalidVehicle = apperr.Validation("INVALID_VEHICLE", "vehicle is invalid")
	ErrNoRatePlans    = apperr.Validation("NO_RATE_PLANS", "vehicle must configure at least one rate plan")
)

type Repository interface {
	Create(ctx context.Context, v *Vehicle) error
	Get(ctx context.Context, id types.ID) (*Vehicle, error)
	List(ctx context.Context, f ListFilter) ([]*Vehicle, int, error)
	AppendMaintenance(ctx context.Context, id types.ID, e MaintenanceEntry) error
	SetActive(ctx context.Context, id types.ID, active bool, at time.Time) error
}

type Service struct {
	store    Repository
	validate *validator.Validate
	currency string
	now      func() time.Time
}

func NewService(store Repository, currency string) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		currency: currency,
		now:      time.Now,
	}
}

type CreateCommand struct {
	OwnerID                types.ID
	Name                   string
	Category               string
	RegistrationNo         string
	Zone                   string
	Plans                  pricing.RatePlans
	Deposit                int64
	RequiredPaymentBps     int64
	RequiresApproval       bool
	RefuelChargePerQuarter int64
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Vehicle, error) {
	now := s.now()
	v := &Vehicle{
		ID:                     types.NewID(),
		OwnerID:                cmd.OwnerID,
		Name:                   cmd.Name,
		Category:               cmd.Category,
		RegistrationNo:         cmd.RegistrationNo,
		Zone:                   cmd.Zone,
		Currency:               s.currency,
		Plans:                  cmd.Plans,
		Deposit:                cmd.Deposit,
		RequiredPaymentBps:     cmd.RequiredPaymentBps,
		RequiresApproval:       cmd.RequiresApproval,
		RefuelChargePerQuarter: cmd.RefuelChargePerQuarter,
		Available:              true,
		Active:                 true,
		Maintenance:            []MaintenanceEntry{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.validate.Struct(v); err != nil {
		return nil, ErrInvalidVehicle.WithMessage("%v", err)
	}
	if v.Plans.Empty() {
		return nil, ErrNoRatePlans
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Vehicle, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Vehicle, int, error) {
	return s.store.List(ctx, f)
}

// Entry exposes the pricing view of a vehicle.
func (s *Service) Entry(ctx context.Context, id types.ID) (pricing.CatalogEntry, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return pricing.CatalogEntry{}, err
	}
	if !v.Active {
		return pricing.CatalogEntry{}, ErrNotFound
	}
	return v.CatalogEntry(), nil
}

func (s *Service) AddMaintenance(ctx context.Context, id types.ID, e MaintenanceEntry) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.validate.Struct(e); err != nil {
		return ErrInvalidVehicle.WithMessage("%v", err)
	}
	return s.store.AppendMaintenance(ctx, id, e)
}

func (s *Service) SetActive(ctx context.Context, id types.ID, active bool) error {
	return s.store.SetActive(ctx, id, active, s.now())
}

// README: Pricing service quotes a rental window against a vehicle's catalog entry.
package pricing

import (
	"context"
	"time"

	"vrent/internal/config"
	"vrent/internal/types"
)

// CatalogEntry is the read-only pricing view of one vehicle.
type CatalogEntry struct {
	Plans    RatePlans
	Deposit  int64
	Currency string
}

type Catalog interface {
	Entry(ctx context.Context, vehicleID types.ID) (CatalogEntry, error)
}

type Service struct {
	catalog  Catalog
	taxBps   types.BasisPoints
	currency string
	loc      *time.Location
}

func NewService(catalog Catalog, cfg config.BillingConfig, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		catalog:  catalog,
		taxBps:   types.BasisPoints(cfg.TaxBps),
		currency: cfg.Currency,
		loc:      loc,
	}
}

type QuoteRequest struct {
	VehicleID    types.ID
	Start        time.Time
	End          time.Time
	RateType     RateType
	FuelIncluded bool
	Addons       []Addon
	Discount     *Discount
}

type Quote struct {
	Selection RateSelection `json:"selection"`
	Billing   Billing       `json:"billing"`
}

func (s *Service) TaxBps() types.BasisPoints { return s.taxBps }
func (s *Service) Location() *time.Location  { return s.loc }

// Quote loads the vehicle's plans and prices the scheduled window with no
// km overage.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	entry, err := s.catalog.Entry(ctx, req.VehicleID)
	if err != nil {
		return Quote{}, err
	}
	return s.QuoteEntry(entry, req, time.Now())
}

// QuoteEntry prices req against an entry the caller already holds.
func (s *Service) QuoteEntry(entry CatalogEntry, req QuoteRequest, at time.Time) (Quote, error) {
	sel, err := Select(entry.Plans, SelectRequest{
		Start:        req.Start,
		End:          req.End,
		RateType:     req.RateType,
		FuelIncluded: req.FuelIncluded,
		Location:     s.loc,
	})
	if err != nil {
		return Quote{}, err
	}
	currency := entry.Currency
	if currency == "" {
		currency = s.currency
	}
	bill, err := Compose(ComposeInput{
		Selection: sel,
		Elapsed:   req.End.Sub(req.Start),
		Addons:    req.Addons,
		Discount:  req.Discount,
		TaxBps:    s.taxBps,
		Deposit:   entry.Deposit,
		Currency:  currency,
		At:        at,
	})
	if err != nil {
		return Quote{}, err
	}
	return Quote{Selection: sel, Billing: bill}, nil
}

// README: Vehicle record: rate plans, deposit policy, availability and maintenance history.
package vehicle

import (
	"time"

	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

type MaintenanceKind string

const (
	MaintenanceService    MaintenanceKind = "service"
	MaintenanceRepair     MaintenanceKind = "repair"
	MaintenanceInspection MaintenanceKind = "inspection"
	MaintenanceCleaning   MaintenanceKind = "cleaning"
)

type MaintenanceEntry struct {
	At       time.Time       `json:"at"`
	Kind     MaintenanceKind `json:"kind" validate:"required,oneof=service repair inspection cleaning"`
	Notes    string          `json:"notes"`
	Odometer int64           `json:"odometer" validate:"gte=0"`
	Cost     int64           `json:"cost" validate:"gte=0"`
	By       types.ID        `json:"by"`
}

type Vehicle struct {
	ID             types.ID          `json:"id"`
	OwnerID        types.ID          `json:"owner_id" validate:"required"`
	Name           string            `json:"name" validate:"required"`
	Category       string            `json:"category" validate:"required"`
	RegistrationNo string            `json:"registration_no" validate:"required"`
	Zone           string            `json:"zone"`
	Currency       string            `json:"currency"`
	Plans          pricing.RatePlans `json:"rate_plans"`
	Deposit        int64             `json:"deposit" validate:"gte=0"`
	// RequiredPaymentBps is the share of the provisional bill that must be
	// paid before confirmation (10000 = full).
	RequiredPaymentBps     int64              `json:"required_payment_bps" validate:"gte=0,lte=10000"`
	RequiresApproval       bool               `json:"requires_approval"`
	RefuelChargePerQuarter int64              `json:"refuel_charge_per_quarter" validate:"gte=0"`
	Available              bool               `json:"available"`
	AvailabilityVersion    int                `json:"availability_version"`
	Active                 bool               `json:"active"`
	Maintenance            []MaintenanceEntry `json:"maintenance"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

func (v *Vehicle) CatalogEntry() pricing.CatalogEntry {
	return pricing.CatalogEntry{Plans: v.Plans, Deposit: v.Deposit, Currency: v.Currency}
}

type ListFilter struct {
	Zone          string
	Category      string
	AvailableOnly bool
	Page          int
	Limit         int
}

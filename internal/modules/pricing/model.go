// README: Rate plans, rate selection and billing breakdown types.
package pricing

import (
	"time"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

type RateType string

const (
	RateHourly         RateType = "hourly"
	RateTwelveHour     RateType = "twelve_hour"
	RateTwentyFourHour RateType = "twenty_four_hour"
	RateDaily          RateType = "daily"
)

func ParseRateType(v string) (RateType, error) {
	switch RateType(v) {
	case RateHourly, RateTwelveHour, RateTwentyFourHour, RateDaily:
		return RateType(v), nil
	}
	return "", ErrUnknownRateType.WithMessage("unknown rate type %q", v)
}

var (
	ErrUnknownRateType = apperr.Validation("UNKNOWN_RATE_TYPE", "rate type not configured for vehicle")
	ErrNegativeAmount  = apperr.Validation("NEGATIVE_AMOUNT", "billing produced a negative amount")
	ErrInvalidAddon    = apperr.Validation("INVALID_ADDON", "addon price and count must be non-negative")
	ErrInvalidDiscount = apperr.Validation("INVALID_DISCOUNT", "discount is malformed")
	ErrNegativeKm      = apperr.Validation("NEGATIVE_DISTANCE", "distance must not be negative")
)

// Plan is implemented by the four rate plan variants only.
type Plan interface {
	rateType() RateType
}

type HourlyPlan struct {
	RatePerHourFuelIncluded int64 `json:"rate_per_hour_fuel_included" validate:"gte=0"`
	RatePerHourFuelExcluded int64 `json:"rate_per_hour_fuel_excluded" validate:"gte=0"`
	FreeKmPerHour           int64 `json:"free_km_per_hour" validate:"gte=0"`
	OveragePerKm            int64 `json:"overage_per_km" validate:"gte=0"`
}

// BlockPlan covers the 12-hour and 24-hour packages.
type BlockPlan struct {
	BaseRate                   int64 `json:"base_rate" validate:"gte=0"`
	IncludedKm                 int64 `json:"included_km" validate:"gte=0"`
	OveragePerKm               int64 `json:"overage_per_km" validate:"gte=0"`
	OveragePerHourFuelIncluded int64 `json:"overage_per_hour_fuel_included" validate:"gte=0"`
	OveragePerHourFuelExcluded int64 `json:"overage_per_hour_fuel_excluded" validate:"gte=0"`
	GracePeriodMinutes         int64 `json:"grace_period_minutes" validate:"gte=0"`
	FuelIncludedSurcharge      int64 `json:"fuel_included_surcharge" validate:"gte=0"`

	hours int64
}

type DailyRate struct {
	// Day is a lower-case weekday name, "weekend" or "festival".
	Day            string `json:"day" validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday weekend festival"`
	Rate           int64  `json:"rate" validate:"gte=0"`
	IncludedKm     int64  `json:"included_km" validate:"gte=0"`
	OveragePerKm   int64  `json:"overage_per_km" validate:"gte=0"`
	OveragePerHour int64  `json:"overage_per_hour" validate:"gte=0"`
}

type DailyPlan struct {
	Rates []DailyRate `json:"rates" validate:"dive"`
	// FestivalDates are local calendar dates formatted 2006-01-02.
	FestivalDates []string `json:"festival_dates,omitempty" validate:"dive,datetime=2006-01-02"`
}

func (HourlyPlan) rateType() RateType { return RateHourly }
func (p BlockPlan) rateType() RateType {
	if p.hours == 12 {
		return RateTwelveHour
	}
	return RateTwentyFourHour
}
func (DailyPlan) rateType() RateType { return RateDaily }

// RatePlans is the per-vehicle catalog; every variant is optional.
type RatePlans struct {
	Hourly         *HourlyPlan `json:"hourly,omitempty" validate:"omitempty"`
	TwelveHour     *BlockPlan  `json:"twelve_hour,omitempty" validate:"omitempty"`
	TwentyFourHour *BlockPlan  `json:"twenty_four_hour,omitempty" validate:"omitempty"`
	Daily          *DailyPlan  `json:"daily,omitempty" validate:"omitempty"`
}

// Plan returns the configured plan for t.
func (p RatePlans) Plan(t RateType) (Plan, error) {
	switch t {
	case RateHourly:
		if p.Hourly != nil {
			return *p.Hourly, nil
		}
	case RateTwelveHour:
		if p.TwelveHour != nil {
			b := *p.TwelveHour
			b.hours = 12
			return b, nil
		}
	case RateTwentyFourHour:
		if p.TwentyFourHour != nil {
			b := *p.TwentyFourHour
			b.hours = 24
			return b, nil
		}
	case RateDaily:
		if p.Daily != nil && len(p.Daily.Rates) > 0 {
			return *p.Daily, nil
		}
	default:
		return nil, ErrUnknownRateType.WithMessage("unknown rate type %q", t)
	}
	return nil, ErrUnknownRateType.WithMessage("rate type %q not configured", t)
}

// Empty reports whether no plan is configured at all.
func (p RatePlans) Empty() bool {
	return p.Hourly == nil && p.TwelveHour == nil && p.TwentyFourHour == nil && (p.Daily == nil || len(p.Daily.Rates) == 0)
}

// RateSelection is the resolved set of numbers the composer works with.
type RateSelection struct {
	RateType RateType `json:"rate_type"`
	// PerHour marks hourly plans: BaseRate and FreeKmPerHour are multiplied
	// by the billable hours and there is no hour overage.
	PerHour            bool   `json:"per_hour"`
	BaseAllowanceHours int64  `json:"base_allowance_hours"`
	BaseAllowanceKm    int64  `json:"base_allowance_km"`
	BaseRate           int64  `json:"base_rate"`
	FreeKmPerHour      int64  `json:"free_km_per_hour,omitempty"`
	OveragePerKm       int64  `json:"overage_per_km"`
	OveragePerHour     int64  `json:"overage_per_hour"`
	GracePeriodMinutes int64  `json:"grace_period_minutes"`
	FuelSurcharge      int64  `json:"fuel_surcharge"`
	DailyRow           string `json:"daily_row,omitempty"`
}

type Addon struct {
	Name  string `json:"name" binding:"required"`
	Price int64  `json:"price"`
	Count int64  `json:"count"`
}

type DiscountType string

const (
	DiscountFlat    DiscountType = "flat"
	DiscountPercent DiscountType = "percent"
)

type Discount struct {
	Code string       `json:"code"`
	Type DiscountType `json:"type"`
	// Value is an amount for flat discounts and basis points for percent ones.
	Value int64 `json:"value"`
}

// Charges are ancillary amounts entered at return.
type Charges struct {
	Damage   int64 `json:"damage"`
	Cleaning int64 `json:"cleaning"`
	Toll     int64 `json:"toll"`
	LateFee  int64 `json:"late_fee"`
}

func (c Charges) Total() int64 {
	return c.Damage + c.Cleaning + c.Toll + c.LateFee
}

func (c Charges) valid() bool {
	return c.Damage >= 0 && c.Cleaning >= 0 && c.Toll >= 0 && c.LateFee >= 0
}

// Billing is the itemised bill. TotalBill never includes the deposit.
type Billing struct {
	RateType        RateType     `json:"rate_type"`
	Currency        string       `json:"currency"`
	BillableHours   int64        `json:"billable_hours"`
	ExtraHours      int64        `json:"extra_hours"`
	ExtraKm         int64        `json:"extra_km"`
	BaseAmount      int64        `json:"base_amount"`
	ExtraHourCharge int64        `json:"extra_hour_charge"`
	ExtraKmCharge   int64        `json:"extra_km_charge"`
	FuelCharge      int64        `json:"fuel_charge"`
	DamageCharge    int64        `json:"damage_charge"`
	CleaningCharge  int64        `json:"cleaning_charge"`
	TollCharge      int64        `json:"toll_charge"`
	LateFee         int64        `json:"late_fee"`
	AddonsTotal     int64        `json:"addons_total"`
	Discount        int64        `json:"discount"`
	DiscountCode    string       `json:"discount_code,omitempty"`
	DiscountType    DiscountType `json:"discount_type,omitempty"`
	Subtotal        int64        `json:"subtotal"`
	TaxBps          int64        `json:"tax_bps"`
	Tax             int64        `json:"tax"`
	TotalBill       int64        `json:"total_bill"`
	Deposit         int64        `json:"deposit"`
	CollectibleNow  int64        `json:"collectible_now"`
	Final           bool         `json:"final"`
	ComputedAt      time.Time    `json:"computed_at"`
}

// AmountDue is what the renter owes in total, deposit included.
func (b Billing) AmountDue() int64 {
	return b.TotalBill + b.Deposit
}

func (b Billing) Money() types.Money {
	return types.NewMoney(b.TotalBill, b.Currency)
}

// README: Billing composer; a pure function from trip parameters to an itemised bill.
package pricing

import (
	"time"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

type ComposeInput struct {
	Selection RateSelection
	// Elapsed is the (scheduled or actual) rental duration.
	Elapsed  time.Duration
	ActualKm int64
	Addons   []Addon
	Discount *Discount
	// FuelCharge is a refuel charge on top of the selection's fuel surcharge.
	FuelCharge int64
	Charges    Charges
	TaxBps     types.BasisPoints
	Deposit    int64
	Currency   string
	Final      bool
	At         time.Time
}

// Compose builds the bill. Calling it twice with the same input yields the
// same Billing; it never adds to a previous result.
func Compose(in ComposeInput) (Billing, error) {
	if in.Elapsed <= 0 {
		return Billing{}, apperr.ErrInvalidTimeRange
	}
	if in.ActualKm < 0 {
		return Billing{}, ErrNegativeKm
	}
	if !in.Charges.valid() || in.FuelCharge < 0 || in.Deposit < 0 {
		return Billing{}, ErrNegativeAmount.WithMessage("charges and deposit must be non-negative")
	}

	sel := in.Selection
	hours := hoursCeil(in.Elapsed)

	var base int64
	allowHours := sel.BaseAllowanceHours
	allowKm := sel.BaseAllowanceKm
	if sel.PerHour {
		base = sel.BaseRate * hours
		allowHours = hours
		allowKm = sel.FreeKmPerHour * hours
	} else {
		base = sel.BaseRate
	}

	var extraHours int64
	if !sel.PerHour && hours > allowHours {
		over := in.Elapsed - time.Duration(allowHours)*time.Hour
		if over >= time.Duration(sel.GracePeriodMinutes)*time.Minute {
			extraHours = hours - allowHours
		}
	}
	extraHourCharge := extraHours * sel.OveragePerHour

	var extraKm int64
	if in.ActualKm > allowKm {
		extraKm = in.ActualKm - allowKm
	}
	extraKmCharge := extraKm * sel.OveragePerKm

	var addons int64
	for _, a := range in.Addons {
		if a.Price < 0 || a.Count < 0 {
			return Billing{}, ErrInvalidAddon.WithMessage("addon %q has negative price or count", a.Name)
		}
		addons += a.Price * a.Count
	}

	fuel := sel.FuelSurcharge + in.FuelCharge
	preDiscount := base + extraHourCharge + extraKmCharge + fuel + in.Charges.Total() + addons

	var discount int64
	b := Billing{}
	if in.Discount != nil {
		d := *in.Discount
		switch d.Type {
		case DiscountFlat:
			discount = d.Value
		case DiscountPercent:
			if d.Value > int64(types.FullBps) {
				return Billing{}, ErrInvalidDiscount.WithMessage("percent discount above 100%%")
			}
			discount = types.ApplyBps(preDiscount, types.BasisPoints(d.Value))
		default:
			return Billing{}, ErrInvalidDiscount.WithMessage("unknown discount type %q", d.Type)
		}
		if discount < 0 {
			return Billing{}, ErrInvalidDiscount.WithMessage("discount must not be negative")
		}
		b.DiscountCode = d.Code
		b.DiscountType = d.Type
	}

	subtotal := preDiscount - discount
	if subtotal < 0 {
		return Billing{}, ErrNegativeAmount.WithMessage("discount %d exceeds billable amount %d", discount, preDiscount)
	}
	if in.TaxBps < 0 {
		return Billing{}, ErrNegativeAmount.WithMessage("tax rate must not be negative")
	}
	tax := types.ApplyBps(subtotal, in.TaxBps)
	total := subtotal + tax

	currency := in.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	b.RateType = sel.RateType
	b.Currency = currency
	b.BillableHours = hours
	b.ExtraHours = extraHours
	b.ExtraKm = extraKm
	b.BaseAmount = base
	b.ExtraHourCharge = extraHourCharge
	b.ExtraKmCharge = extraKmCharge
	b.FuelCharge = fuel
	b.DamageCharge = in.Charges.Damage
	b.CleaningCharge = in.Charges.Cleaning
	b.TollCharge = in.Charges.Toll
	b.LateFee = in.Charges.LateFee
	b.AddonsTotal = addons
	b.Discount = discount
	b.Subtotal = subtotal
	b.TaxBps = int64(in.TaxBps)
	b.Tax = tax
	b.TotalBill = total
	b.Deposit = in.Deposit
	b.CollectibleNow = total + in.Deposit
	b.Final = in.Final
	b.ComputedAt = in.At
	return b, nil
}

// IncrementalSelection prices an extension window hour by hour: hourly plans
// keep their rate, block and daily plans charge their overage-per-hour with
// a pro-rata share of the km allowance.
func IncrementalSelection(sel RateSelection) RateSelection {
	if sel.PerHour {
		return sel
	}
	kmPerHour := int64(0)
	if sel.BaseAllowanceHours > 0 {
		kmPerHour = sel.BaseAllowanceKm / sel.BaseAllowanceHours
	}
	return RateSelection{
		RateType:      sel.RateType,
		PerHour:       true,
		BaseRate:      sel.OveragePerHour,
		FreeKmPerHour: kmPerHour,
		OveragePerKm:  sel.OveragePerKm,
	}
}

package pricing

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

func selection24h() RateSelection {
	return RateSelection{
		RateType:           RateTwentyFourHour,
		BaseAllowanceHours: 24,
		BaseAllowanceKm:    300,
		BaseRate:           168000,
		OveragePerKm:       1000,
		OveragePerHour:     4000,
	}
}

// 24h plan, 33 hours driven, 180 km: 1680.00 + 9 x 40.00 = 2040.00 before tax.
func TestCompose_TwentyFourHourOverage(t *testing.T) {
	b, err := Compose(ComposeInput{
		Selection: selection24h(),
		Elapsed:   33 * time.Hour,
		ActualKm:  180,
		TaxBps:    0,
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if b.BaseAmount != 168000 || b.ExtraHours != 9 || b.ExtraHourCharge != 36000 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
	if b.ExtraKm != 0 || b.ExtraKmCharge != 0 {
		t.Fatalf("expected no km overage, got %+v", b)
	}
	if b.Subtotal != 204000 || b.TotalBill != 204000 {
		t.Fatalf("expected 204000, got subtotal=%d total=%d", b.Subtotal, b.TotalBill)
	}
}

func TestCompose_FullBreakdownWithTax(t *testing.T) {
	in := ComposeInput{
		Selection: selection24h(),
		Elapsed:   26*time.Hour + 10*time.Minute, // 27 billable, 3 extra
		ActualKm:  340,                           // 40 extra
		Addons:    []Addon{{Name: "child_seat", Price: 10000, Count: 1}, {Name: "helmet", Price: 2500, Count: 2}},
		Discount:  &Discount{Code: "FEST10", Type: DiscountPercent, Value: 1000},
		Charges:   Charges{Cleaning: 5000, Toll: 1250},
		TaxBps:    types.Percent(18),
		Deposit:   500000,
		Currency:  "INR",
	}
	b, err := Compose(in)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	// base 168000 + hours 12000 + km 40000 + ancillary 6250 + addons 15000 = 241250
	// discount 10% = 24125 -> subtotal 217125
	// tax 18% = 39082.5 -> 39083 (half-up) -> total 256208
	if b.ExtraHours != 3 || b.ExtraHourCharge != 12000 {
		t.Fatalf("unexpected hour overage: %+v", b)
	}
	if b.ExtraKm != 40 || b.ExtraKmCharge != 40000 {
		t.Fatalf("unexpected km overage: %+v", b)
	}
	if b.AddonsTotal != 15000 || b.Discount != 24125 || b.Subtotal != 217125 {
		t.Fatalf("unexpected subtotal: %+v", b)
	}
	if b.Tax != 39083 || b.TotalBill != 256208 {
		t.Fatalf("unexpected tax/total: tax=%d total=%d", b.Tax, b.TotalBill)
	}
	if b.Deposit != 500000 || b.CollectibleNow != 756208 {
		t.Fatalf("deposit must stay outside the bill: %+v", b)
	}
	if b.TotalBill != b.BaseAmount+b.ExtraHourCharge+b.ExtraKmCharge+b.FuelCharge+
		b.DamageCharge+b.CleaningCharge+b.TollCharge+b.LateFee+b.AddonsTotal+b.Tax-b.Discount {
		t.Fatal("total does not add up to its components")
	}
}

func TestCompose_Idempotent(t *testing.T) {
	in := ComposeInput{
		Selection: selection24h(),
		Elapsed:   30 * time.Hour,
		ActualKm:  420,
		Discount:  &Discount{Type: DiscountFlat, Value: 5000},
		TaxBps:    types.Percent(18),
		Deposit:   100000,
	}
	first, err := Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("compose is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestCompose_GraceWaivesOverage(t *testing.T) {
	sel := RateSelection{
		RateType:           RateTwelveHour,
		BaseAllowanceHours: 12,
		BaseAllowanceKm:    150,
		BaseRate:           90000,
		OveragePerHour:     4500,
		GracePeriodMinutes: 30,
	}
	within, err := Compose(ComposeInput{Selection: sel, Elapsed: 12*time.Hour + 29*time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if within.ExtraHours != 0 || within.TotalBill != 90000 {
		t.Fatalf("expected overage waived inside grace, got %+v", within)
	}
	past, err := Compose(ComposeInput{Selection: sel, Elapsed: 12*time.Hour + 31*time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if past.ExtraHours != 1 || past.ExtraHourCharge != 4500 {
		t.Fatalf("expected one extra hour after grace, got %+v", past)
	}
}

func TestCompose_HourlyScalesAllowance(t *testing.T) {
	sel := RateSelection{RateType: RateHourly, PerHour: true, BaseRate: 5000, FreeKmPerHour: 10, OveragePerKm: 800}
	b, err := Compose(ComposeInput{Selection: sel, Elapsed: 4*time.Hour + 5*time.Minute, ActualKm: 62})
	if err != nil {
		t.Fatal(err)
	}
	// 5 hours: base 25000, allowance 50 km, 12 km over at 800
	if b.BaseAmount != 25000 || b.ExtraHours != 0 || b.ExtraKm != 12 || b.ExtraKmCharge != 9600 {
		t.Fatalf("unexpected hourly breakdown: %+v", b)
	}
}

func TestCompose_NoDoubleOverage(t *testing.T) {
	// A quote over the scheduled window followed by a final compose over the
	// actual trip: the final bill is computed from scratch, not added on top.
	quote, err := Compose(ComposeInput{Selection: selection24h(), Elapsed: 24 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	final, err := Compose(ComposeInput{Selection: selection24h(), Elapsed: 26 * time.Hour, ActualKm: 310, Final: true})
	if err != nil {
		t.Fatal(err)
	}
	if quote.TotalBill != 168000 {
		t.Fatalf("unexpected quote %d", quote.TotalBill)
	}
	if final.TotalBill != 168000+2*4000+10*1000 {
		t.Fatalf("unexpected final %d", final.TotalBill)
	}
}

func TestCompose_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   ComposeInput
		want error
	}{
		{"zero elapsed", ComposeInput{Selection: selection24h()}, apperr.ErrInvalidTimeRange},
		{"negative km", ComposeInput{Selection: selection24h(), Elapsed: time.Hour, ActualKm: -1}, ErrNegativeKm},
		{"negative addon", ComposeInput{Selection: selection24h(), Elapsed: time.Hour, Addons: []Addon{{Name: "x", Price: -1, Count: 1}}}, ErrInvalidAddon},
		{"discount too big", ComposeInput{Selection: selection24h(), Elapsed: time.Hour, Discount: &Discount{Type: DiscountFlat, Value: 168001}}, ErrNegativeAmount},
		{"bad discount type", ComposeInput{Selection: selection24h(), Elapsed: time.Hour, Discount: &Discount{Type: "bogo"}}, ErrInvalidDiscount},
		{"negative charge", ComposeInput{Selection: selection24h(), Elapsed: time.Hour, Charges: Charges{Damage: -5}}, ErrNegativeAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compose(tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// Two extra hours on an hourly increment of 50.00 with 18% GST: 100.00 + 18.00.
func TestIncrementalSelection(t *testing.T) {
	hourly := RateSelection{RateType: RateHourly, PerHour: true, BaseRate: 5000, FreeKmPerHour: 10}
	b, err := Compose(ComposeInput{Selection: IncrementalSelection(hourly), Elapsed: 2 * time.Hour, TaxBps: types.Percent(18)})
	if err != nil {
		t.Fatal(err)
	}
	if b.Subtotal != 10000 || b.Tax != 1800 {
		t.Fatalf("expected 10000 + 1800, got %d + %d", b.Subtotal, b.Tax)
	}

	inc := IncrementalSelection(selection24h())
	if !inc.PerHour || inc.BaseRate != 4000 || inc.FreeKmPerHour != 12 {
		t.Fatalf("unexpected block increment: %+v", inc)
	}
}

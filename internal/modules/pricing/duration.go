// README: Duration rounding and rate selection for a rental window.
package pricing

import (
	"strings"
	"time"

	"vrent/internal/apperr"
)

// BillableHours rounds the elapsed time up to whole hours.
func BillableHours(start, end time.Time) (int64, error) {
	if !end.After(start) {
		return 0, apperr.ErrInvalidTimeRange
	}
	return hoursCeil(end.Sub(start)), nil
}

func hoursCeil(d time.Duration) int64 {
	h := int64(d / time.Hour)
	if d%time.Hour != 0 {
		h++
	}
	return h
}

type SelectRequest struct {
	Start        time.Time
	End          time.Time
	RateType     RateType
	FuelIncluded bool
	// Location decides the local weekday and festival date of Start.
	Location *time.Location
}

// Select resolves the numbers for one rental window from the vehicle's plans.
func Select(plans RatePlans, req SelectRequest) (RateSelection, error) {
	hours, err := BillableHours(req.Start, req.End)
	if err != nil {
		return RateSelection{}, err
	}
	plan, err := plans.Plan(req.RateType)
	if err != nil {
		return RateSelection{}, err
	}

	switch p := plan.(type) {
	case HourlyPlan:
		rate := p.RatePerHourFuelExcluded
		if req.FuelIncluded {
			rate = p.RatePerHourFuelIncluded
		}
		return RateSelection{
			RateType:           RateHourly,
			PerHour:            true,
			BaseAllowanceHours: hours,
			BaseAllowanceKm:    p.FreeKmPerHour * hours,
			BaseRate:           rate,
			FreeKmPerHour:      p.FreeKmPerHour,
			OveragePerKm:       p.OveragePerKm,
		}, nil
	case BlockPlan:
		sel := RateSelection{
			RateType:           p.rateType(),
			BaseAllowanceHours: p.hours,
			BaseAllowanceKm:    p.IncludedKm,
			BaseRate:           p.BaseRate,
			OveragePerKm:       p.OveragePerKm,
			OveragePerHour:     p.OveragePerHourFuelExcluded,
			GracePeriodMinutes: p.GracePeriodMinutes,
		}
		if req.FuelIncluded {
			sel.OveragePerHour = p.OveragePerHourFuelIncluded
			sel.FuelSurcharge = p.FuelIncludedSurcharge
		}
		return sel, nil
	case DailyPlan:
		row, ok := p.rowFor(req.Start, req.Location)
		if !ok {
			return RateSelection{}, ErrUnknownRateType.WithMessage("no daily rate for %s", localWeekday(req.Start, req.Location))
		}
		return RateSelection{
			RateType:           RateDaily,
			BaseAllowanceHours: 24,
			BaseAllowanceKm:    row.IncludedKm,
			BaseRate:           row.Rate,
			OveragePerKm:       row.OveragePerKm,
			OveragePerHour:     row.OveragePerHour,
			DailyRow:           row.Day,
		}, nil
	default:
		return RateSelection{}, ErrUnknownRateType
	}
}

// rowFor picks festival over weekend over the literal weekday.
func (p DailyPlan) rowFor(start time.Time, loc *time.Location) (DailyRate, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	byDay := make(map[string]DailyRate, len(p.Rates))
	for _, r := range p.Rates {
		byDay[strings.ToLower(r.Day)] = r
	}

	date := local.Format("2006-01-02")
	for _, f := range p.FestivalDates {
		if f == date {
			if r, ok := byDay["festival"]; ok {
				return r, true
			}
			break
		}
	}
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		if r, ok := byDay["weekend"]; ok {
			return r, true
		}
	}
	r, ok := byDay[localWeekday(start, loc)]
	return r, ok
}

func localWeekday(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return strings.ToLower(t.In(loc).Weekday().String())
}

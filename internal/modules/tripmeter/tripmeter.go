// README: Trip meter reconciliation: odometer readings to billable distance.
package tripmeter

import (
	"strings"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

var (
	ErrNegativeDistance     = apperr.Validation("NEGATIVE_DISTANCE", "end odometer is below start odometer")
	ErrInvalidReading       = apperr.Validation("INVALID_ODOMETER", "odometer readings must not be negative")
	ErrOverrideReason       = apperr.Validation("OVERRIDE_REASON_REQUIRED", "manual distance override needs a reason")
	ErrOverrideUnauthorized = apperr.Policy("OVERRIDE_NOT_ALLOWED", "actor may not override trip distance")
)

// ManualOverride replaces the computed distance, for example after an
// odometer swap mid-rental.
type ManualOverride struct {
	Km     int64     `json:"km"`
	Reason string    `json:"reason"`
	By     types.ID  `json:"by"`
	At     time.Time `json:"at"`
}

type TripMetrics struct {
	StartOdometer int64           `json:"start_odometer"`
	EndOdometer   int64           `json:"end_odometer"`
	TotalKm       int64           `json:"total_km"`
	Override      *ManualOverride `json:"override,omitempty"`
}

type Input struct {
	StartOdometer int64
	EndOdometer   int64
	Override      *ManualOverride
	// OverrideAllowed is decided by the caller from the actor's role.
	OverrideAllowed bool
}

// Reconcile computes the trip distance. A reading that goes backwards is an
// error unless an authorised override with a reason is supplied.
func Reconcile(in Input) (TripMetrics, error) {
	if in.StartOdometer < 0 || in.EndOdometer < 0 {
		return TripMetrics{}, ErrInvalidReading
	}
	m := TripMetrics{StartOdometer: in.StartOdometer, EndOdometer: in.EndOdometer}

	if in.Override != nil {
		if !in.OverrideAllowed {
			return TripMetrics{}, ErrOverrideUnauthorized
		}
		if strings.TrimSpace(in.Override.Reason) == "" {
			return TripMetrics{}, ErrOverrideReason
		}
		if in.Override.Km < 0 {
			return TripMetrics{}, ErrNegativeDistance.WithMessage("override distance must not be negative")
		}
		o := *in.Override
		m.Override = &o
		m.TotalKm = o.Km
		return m, nil
	}

	if in.EndOdometer < in.StartOdometer {
		return TripMetrics{}, ErrNegativeDistance.WithMessage("end odometer %d is below start %d", in.EndOdometer, in.StartOdometer)
	}
	m.TotalKm = in.EndOdometer - in.StartOdometer
	return m, nil
}

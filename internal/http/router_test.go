// README: Route-level tests for auth, role gates, ownership and error mapping.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "vrent/internal/http"
	"vrent/internal/config"
	"vrent/internal/http/middleware"
	"vrent/internal/infra"
	"vrent/internal/maps"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/booking/bookingtest"
	"vrent/internal/modules/extension"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

// tokenVerifier treats the bearer token as "<uid>:<role>".
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return &infra.FirebaseToken{UID: raw[:i], Claims: map[string]interface{}{"role": raw[i+1:]}}, nil
		}
	}
	return nil, errors.New("malformed token")
}

var start = time.Date(2026, 10, 20, 10, 0, 0, 0, bookingtest.IST)

func newRouter(t *testing.T, opts ...func(*apihttp.ServerDeps)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := bookingtest.NewStore()
	store.PutVehicle(bookingtest.SampleVehicle("veh-1"))
	clock := bookingtest.NewClock(time.Date(2026, 10, 19, 9, 0, 0, 0, bookingtest.IST))
	quoter := pricing.NewService(store.Vehicles(), config.BillingConfig{Currency: "INR", TaxBps: 1800}, bookingtest.IST)

	bookings := booking.NewService(store, store.Vehicles(), quoter, notify.Nop{}, booking.Policy{NoShowTimeout: 2 * time.Hour})
	bookings.SetClock(clock.Now)
	ext := extension.NewService(store, store.Vehicles(), quoter, notify.Nop{}, 2*time.Hour)
	ext.SetClock(clock.Now)

	deps := apihttp.ServerDeps{
		Verifier:       tokenVerifier{},
		CallbackSecret: "cb-secret",
		Location:       bookingtest.IST,
		Bookings:       bookings,
		Extensions:     ext,
		Pricing:        quoter,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return apihttp.NewRouter(deps)
}

type fixedPlaces struct {
	place maps.Place
	calls int
}

func (f *fixedPlaces) Resolve(_ context.Context, address string, _ *types.Point) (maps.Place, error) {
	f.calls++
	if address == "nowhere" {
		return maps.Place{}, maps.ErrAddressNotFound
	}
	return f.place, nil
}

func doRequest(r *gin.Engine, method, path string, body any, token string, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createBooking(t *testing.T, r *gin.Engine, token string) map[string]any {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/bookings", map[string]any{
		"vehicle_id": "veh-1",
		"start_at":   start,
		"end_at":     start.Add(3 * time.Hour),
		"rate_type":  pricing.RateHourly,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestHealth(t *testing.T) {
	r := newRouter(t)
	w := doRequest(r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestBookings_RequireAuth(t *testing.T) {
	r := newRouter(t)
	w := doRequest(r, http.MethodPost, "/api/bookings", map[string]any{"vehicle_id": "veh-1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/api/bookings", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookings_RenterCreatesAndConfirms(t *testing.T) {
	r := newRouter(t)
	b := createBooking(t, r, "renter-1:renter")
	assert.Equal(t, "renter-1", b["renter_id"])
	assert.Equal(t, string(booking.SourceOnline), b["source"])
	assert.Equal(t, string(booking.StatusPending), b["status"])

	codes := b["codes"].(map[string]any)
	assert.NotEmpty(t, codes["pickup"].(map[string]any)["code"], "renter sees the pickup code")

	id := b["id"].(string)
	w := doRequest(r, http.MethodPost, "/api/bookings/"+id+"/confirm", nil, "renter-1:renter")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(booking.StatusConfirmed), decode(t, w)["status"])
}

func TestBookings_OwnershipAndRedaction(t *testing.T) {
	r := newRouter(t)
	id := createBooking(t, r, "renter-1:renter")["id"].(string)

	w := doRequest(r, http.MethodGet, "/api/bookings/"+id, nil, "renter-2:renter")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decode(t, w)["code"])

	w = doRequest(r, http.MethodGet, "/api/bookings/"+id, nil, "agent-1:agent")
	require.Equal(t, http.StatusOK, w.Code)
	codes := decode(t, w)["codes"].(map[string]any)
	assert.Empty(t, codes["pickup"].(map[string]any)["code"], "agents never see verification codes")

	w = doRequest(r, http.MethodGet, "/api/bookings/"+id, nil, "admin-1:admin")
	require.Equal(t, http.StatusOK, w.Code)
	codes = decode(t, w)["codes"].(map[string]any)
	assert.NotEmpty(t, codes["pickup"].(map[string]any)["code"])
}

func TestBookings_RoleGates(t *testing.T) {
	r := newRouter(t)
	id := createBooking(t, r, "renter-1:renter")["id"].(string)

	w := doRequest(r, http.MethodPost, "/api/bookings/"+id+"/pickup", map[string]any{"code": "1234", "odometer": 100}, "renter-1:renter")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodPost, "/api/bookings/"+id+"/assign", map[string]any{"agent_id": "agent-1"}, "agent-1:agent")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodGet, "/api/extensions/pending", nil, "renter-1:renter")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBookings_ErrorMapping(t *testing.T) {
	r := newRouter(t)

	w := doRequest(r, http.MethodGet, "/api/bookings/does-not-exist", nil, "admin-1:admin")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "BOOKING_NOT_FOUND", decode(t, w)["code"])

	w = doRequest(r, http.MethodGet, "/api/bookings/bad$id", nil, "admin-1:admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/bookings", map[string]any{
		"vehicle_id": "veh-1",
		"start_at":   start,
		"end_at":     start.Add(-time.Hour),
		"rate_type":  pricing.RateHourly,
	}, "renter-1:renter")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TIME_RANGE", decode(t, w)["code"])

	w = doRequest(r, http.MethodPost, "/api/bookings", map[string]any{"rate_type": "hourly"}, "renter-1:renter")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtensions_RequestThroughAPI(t *testing.T) {
	r := newRouter(t)
	id := createBooking(t, r, "renter-1:renter")["id"].(string)
	w := doRequest(r, http.MethodPost, "/api/bookings/"+id+"/confirm", nil, "renter-1:renter")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPost, "/api/bookings/"+id+"/extensions", map[string]any{
		"new_end_at": start.Add(5 * time.Hour),
	}, "renter-1:renter")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ext := decode(t, w)
	assert.Equal(t, string(booking.ExtensionPending), ext["status"])

	w = doRequest(r, http.MethodPost, "/api/bookings/"+id+"/extensions/"+ext["id"].(string)+"/approve", nil, "agent-1:agent")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(r, http.MethodPost, "/api/bookings/"+id+"/extensions", map[string]any{
		"new_end_at": start.Add(6 * time.Hour),
	}, "renter-1:renter")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPaymentCallback(t *testing.T) {
	r := newRouter(t)
	id := createBooking(t, r, "renter-1:renter")["id"].(string)
	body := map[string]any{
		"booking_id":    id,
		"amount":        17700,
		"instrument":    booking.InstrumentUPI,
		"processor_ref": "upi-77",
	}

	w := doRequest(r, http.MethodPost, "/api/payments/callback", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/api/payments/callback", body, "", middleware.CallbackHeader, "cb-secret")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "upi-77", decode(t, w)["processor_ref"])

	// Replays are answered with the stored payment.
	w = doRequest(r, http.MethodPost, "/api/payments/callback", body, "", middleware.CallbackHeader, "cb-secret")
	assert.Equal(t, http.StatusOK, w.Code)

	body["booking_id"] = "missing"
	w = doRequest(r, http.MethodPost, "/api/payments/callback", body, "", middleware.CallbackHeader, "cb-secret")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookings_StaffBookingWithPickupAddress(t *testing.T) {
	places := &fixedPlaces{place: maps.Place{PlaceID: "p1", Position: types.Point{Lat: 12.9756, Lng: 77.6066}}}
	r := newRouter(t, func(d *apihttp.ServerDeps) { d.Places = places })
	body := map[string]any{
		"vehicle_id":     "veh-1",
		"renter_id":      "walkin-9",
		"start_at":       start,
		"end_at":         start.Add(3 * time.Hour),
		"rate_type":      pricing.RateHourly,
		"pickup_address": "MG Road Metro, Bengaluru",
	}

	w := doRequest(r, http.MethodPost, "/api/bookings", body, "agent-1:agent")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode(t, w)
	assert.Equal(t, "walkin-9", b["renter_id"])
	assert.Equal(t, "agent-1", b["booked_by"])
	assert.Equal(t, string(booking.SourceOfflineWorker), b["source"])
	assert.NotNil(t, b["cash_flow"])
	pickup := b["pickup_location"].(map[string]any)
	assert.InDelta(t, 12.9756, pickup["lat"], 1e-9)
	assert.Equal(t, 1, places.calls)

	body["pickup_address"] = "nowhere"
	w = doRequest(r, http.MethodPost, "/api/bookings", body, "agent-1:agent")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ADDRESS_NOT_FOUND", decode(t, w)["code"])

	delete(body, "renter_id")
	w = doRequest(r, http.MethodPost, "/api/bookings", body, "agent-1:agent")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

// searchRadiusMeters biases text search around the counter that took the booking.
const searchRadiusMeters = 20000

var ErrAddressNotFound = apperr.NotFound("ADDRESS_NOT_FOUND", "no place matches the pickup address")

// Place represents a resolved pickup address.
type Place struct {
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	PlaceID  string      `json:"place_id"`
	Position types.Point `json:"position"`
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
	region string
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey, region string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client, region: region}, nil
}

// Resolve turns a free-form pickup address typed at the counter into a
// point. near, when set, biases the search to that area.
func (s *PlacesService) Resolve(ctx context.Context, address string, near *types.Point) (Place, error) {
	query := strings.TrimSpace(address)
	if query == "" {
		return Place{}, apperr.Validation("INVALID_ADDRESS", "address is empty")
	}
	r := &maps.TextSearchRequest{
		Query:    query,
		Language: "en",
		Region:   s.region,
	}
	if near != nil && near.Valid() && *near != (types.Point{}) {
		r.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		r.Radius = searchRadiusMeters
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return Place{}, apperr.External("MAPS_ERROR", fmt.Errorf("places api error: %w", err))
	}
	return firstPlace(resp.Results)
}

// firstPlace picks the first result that carries a usable location.
func firstPlace(results []maps.PlacesSearchResult) (Place, error) {
	for _, result := range results {
		p := types.Point{Lat: result.Geometry.Location.Lat, Lng: result.Geometry.Location.Lng}
		if !p.Valid() || p == (types.Point{}) {
			continue
		}
		return Place{
			Name:     result.Name,
			Address:  result.FormattedAddress,
			PlaceID:  result.PlaceID,
			Position: p,
		}, nil
	}
	return Place{}, ErrAddressNotFound
}

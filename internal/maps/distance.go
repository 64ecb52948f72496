// README: Road distances from the Google Maps Distance Matrix API.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"vrent/internal/types"
)

// maxDestinations is the Distance Matrix per-request element limit for one origin.
const maxDestinations = 25

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
	region string
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey, region string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region}, nil
}

// DistancesKm returns the driving distance from origin to every destination,
// in destination order. An unreachable destination is reported as an error.
func (s *RouteService) DistancesKm(ctx context.Context, origin types.Point, dests []types.Point) ([]float64, error) {
	out := make([]float64, 0, len(dests))
	for start := 0; start < len(dests); start += maxDestinations {
		end := min(start+maxDestinations, len(dests))
		r := &maps.DistanceMatrixRequest{
			Origins:      []string{latLng(origin)},
			Destinations: make([]string, 0, end-start),
			Mode:         maps.TravelModeDriving,
			Region:       s.region,
		}
		for _, d := range dests[start:end] {
			r.Destinations = append(r.Destinations, latLng(d))
		}

		resp, err := s.client.DistanceMatrix(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("maps api error: %w", err)
		}
		if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) != end-start {
			return nil, fmt.Errorf("maps api returned %d rows for %d destinations", len(resp.Rows), end-start)
		}
		for i, el := range resp.Rows[0].Elements {
			if el.Status != "OK" {
				return nil, fmt.Errorf("no route to destination %d: %s", start+i, el.Status)
			}
			out = append(out, float64(el.Distance.Meters)/1000)
		}
	}
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

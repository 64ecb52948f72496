// README: Field agents and the candidates the assignment scorer ranks.
package matching

import (
	"time"

	"vrent/internal/types"
)

type Agent struct {
	ID              types.ID    `json:"id"`
	Name            string      `json:"name"`
	Rating          float64     `json:"rating"`
	CompletedJobs   int         `json:"completed_jobs"`
	Position        types.Point `json:"position"`
	Specializations []string    `json:"specializations"`
	Active          bool        `json:"active"`
	Available       bool        `json:"available"`
	ActiveJobs      int         `json:"active_jobs"`
	DeviceToken     string      `json:"-"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Candidate is an agent with its distance to the pickup point resolved.
type Candidate struct {
	Agent      Agent
	DistanceKm float64
}

func (a Agent) Specializes(category string) bool {
	if category == "" {
		return false
	}
	for _, s := range a.Specializations {
		if s == category {
			return true
		}
	}
	return false
}

const (
	ratingWeight     = 40.0
	experienceWeight = 30.0
	experienceCap    = 100.0
	proximityWeight  = 30.0
	// proximityDecay is points lost per kilometre.
	proximityDecay      = 2.0
	specializationBonus = 10.0
	maxRating           = 5.0
)

// README: Pure agent scoring and selection.
package matching

import "math"

// Score rates a candidate on a 0..110 scale; higher wins.
func Score(c Candidate, category string) float64 {
	a := c.Agent
	rating := math.Max(0, math.Min(a.Rating, maxRating))
	score := rating / maxRating * ratingWeight
	score += math.Min(float64(a.CompletedJobs)/experienceCap, 1) * experienceWeight
	score += math.Max(0, proximityWeight-proximityDecay*c.DistanceKm)
	if a.Specializes(category) {
		score += specializationBonus
	}
	return score
}

// SelectAgent returns the best active, available candidate, or nil when
// there is none. Ties go to the agent with fewer active jobs, then lower ID.
func SelectAgent(candidates []Candidate, category string) *Candidate {
	var best *Candidate
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if !c.Agent.Active || !c.Agent.Available {
			continue
		}
		s := Score(*c, category)
		if best == nil || better(s, c, bestScore, best) {
			best, bestScore = c, s
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

const scoreEpsilon = 1e-9

func better(s float64, c *Candidate, bestScore float64, best *Candidate) bool {
	if math.Abs(s-bestScore) > scoreEpsilon {
		return s > bestScore
	}
	if c.Agent.ActiveJobs != best.Agent.ActiveJobs {
		return c.Agent.ActiveJobs < best.Agent.ActiveJobs
	}
	return c.Agent.ID < best.Agent.ID
}

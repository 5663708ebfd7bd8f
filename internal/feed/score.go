package feed

import "time"

// Engagement score: observed likes per minute of age, weighted by a step
// decay so fresh posts outrank stale ones, with an account "speed
// personality" nudging either the very-fresh or the moderately-aged band.

const (
	freshAge    = 30 * time.Minute
	recentAge   = 2 * time.Hour
	moderateAge = 6 * time.Hour

	freshMult    = 3.0
	recentMult   = 2.0
	moderateMult = 1.0
	floorMult    = 0.5

	fastBias = 1.5
	slowBias = 1.3
)

// Score computes the engagement score for a candidate at now.
// speed is "", "fast", or "slow".
func Score(c Candidate, now time.Time, speed string) float64 {
	age := now.Sub(c.Timestamp)
	ageMin := age.Minutes()
	if ageMin < 1 {
		ageMin = 1
	}

	var mult float64
	switch {
	case age < freshAge:
		mult = freshMult
		if speed == "fast" {
			mult *= fastBias
		}
	case age < recentAge:
		mult = recentMult
	case age < moderateAge:
		mult = moderateMult
		if speed == "slow" {
			mult *= slowBias
		}
	default:
		mult = floorMult
		if speed == "slow" {
			mult *= slowBias
		}
	}

	return float64(c.Likes) / ageMin * mult
}

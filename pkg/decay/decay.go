// Package decay computes time- and feedback-adjusted confidence values for
// memories and trust scores. All functions are pure and deterministic given
// now, which keeps them independently unit-testable.
package decay

import (
	"math"
	"time"

	"github.com/m-mizutani/lethe/pkg/model"
)

const (
	// DefaultHalfLifeDays is the memory confidence half-life.
	DefaultHalfLifeDays = 30

	// DefaultCitationSaturation is the citation count at which the
	// recorded success rate fully replaces the vote-based reputation.
	DefaultCitationSaturation = 5
)

// Params tunes the decay math. The zero value is usable and falls back to
// the defaults.
type Params struct {
	HalfLifeDays       float64
	CitationSaturation int
}

func (p Params) halfLife() float64 {
	if p.HalfLifeDays <= 0 {
		return DefaultHalfLifeDays
	}
	return p.HalfLifeDays
}

func (p Params) saturation() int {
	if p.CitationSaturation <= 0 {
		return DefaultCitationSaturation
	}
	return p.CitationSaturation
}

// TimeDecay returns 0.5^(ageDays/halfLifeDays), the multiplier that halves
// every half-life. Negative ages (clock skew) are treated as zero.
func TimeDecay(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	if ageDays <= 0 {
		return 1
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// AgeDays returns the effective age of a memory in days, counted from the
// last validation when one happened, otherwise from creation.
func AgeDays(m *model.Memory, now time.Time) float64 {
	age := now.Sub(m.EffectiveSince()).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

// reputation derives a factor in [0,1] from accumulated votes. It starts at
// the neutral 0.5, shifts toward 1.0 by the upvote ratio, and blends in the
// recorded success rate once the memory has been cited, weighted by citation
// count up to the saturation constant.
func reputation(v model.VoteStats, saturation int) float64 {
	signal := float64(v.Upvotes) / float64(v.Upvotes+v.Downvotes+1)
	rep := 0.5 + 0.5*signal

	if v.Citations > 0 {
		w := float64(v.Citations) / float64(saturation)
		if w > 1 {
			w = 1
		}
		rep = (1-w)*rep + w*v.SuccessRate
	}

	return clamp01(rep)
}

// Confidence returns the usable confidence of a memory at now:
// author prior * time decay * reputation, clamped to [0,1]. The author
// prior defaults to 1 at creation, so unannotated memories follow the
// plain time-decay-times-reputation curve.
func (p Params) Confidence(m *model.Memory, now time.Time) float64 {
	prior := m.Confidence
	if prior <= 0 || prior > 1 {
		prior = 1
	}

	decayed := prior * TimeDecay(AgeDays(m, now), p.halfLife()) * reputation(m.Votes, p.saturation())
	return clamp01(decayed)
}

// DecayTowardNeutral pulls a trust score back toward the 0.5 prior as the
// time since its last reinforcement grows, so stale high or low trust does
// not persist indefinitely. The distance from neutral halves every
// half-life.
func DecayTowardNeutral(score, ageDays, halfLifeDays float64) float64 {
	return clamp01(0.5 + (score-0.5)*TimeDecay(ageDays, halfLifeDays))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

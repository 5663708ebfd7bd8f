// Package randx provides the randomness primitives behind quota rolls,
// session spreading, and human-like delay shaping.
//
// Every consumer takes a *Rand so tests can substitute a deterministic
// Source and assert exact outcomes.
package randx

import (
	"math"
	"math/rand/v2"
	"time"
)

// Source yields uniform draws in [0, 1). A single method keeps test
// doubles trivial; everything else is derived from it.
type Source interface {
	Float64() float64
}

type Rand struct {
	src Source
}

type pcgSource struct{ r *rand.Rand }

func (s pcgSource) Float64() float64 { return s.r.Float64() }

// New returns a Rand backed by a time-seeded PCG generator.
func New() *Rand {
	now := time.Now()
	return NewSeeded(uint64(now.UnixNano()), uint64(now.Unix()))
}

// NewSeeded returns a reproducible Rand. Used by tests and by anything
// that needs a stable per-day stream.
func NewSeeded(a, b uint64) *Rand {
	return &Rand{src: pcgSource{r: rand.New(rand.NewPCG(a, b))}}
}

// FromSource wraps an arbitrary Source (deterministic in tests).
func FromSource(src Source) *Rand { return &Rand{src: src} }

func (r *Rand) Float64() float64 { return r.src.Float64() }

// IntN returns a uniform int in [0, n). n <= 0 returns 0.
func (r *Rand) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(r.src.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Between returns a uniform int in [min, max] inclusive.
func (r *Rand) Between(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.IntN(max-min+1)
}

// Chance reports true with probability p.
func (r *Rand) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.src.Float64() < p
}

// Uniform returns a uniform float in [min, max).
func (r *Rand) Uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.src.Float64()*(max-min)
}

// Gaussian draws from a normal distribution shaped to [min, max]:
// mean=(min+max)/2, stddev=(max-min)/6, Box-Muller, clamped to the bounds.
// This is the one shape used for every human-like delay.
func (r *Rand) Gaussian(min, max float64) float64 {
	if max <= min {
		return min
	}
	mean := (min + max) / 2
	stdDev := (max - min) / 6

	u1 := r.src.Float64()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	u2 := r.src.Float64()
	z0 := math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)

	v := mean + z0*stdDev
	return math.Max(min, math.Min(max, v))
}

// GaussianDuration is Gaussian over a duration range.
func (r *Rand) GaussianDuration(min, max time.Duration) time.Duration {
	return time.Duration(r.Gaussian(float64(min), float64(max)))
}

// WeightedIndex picks an index proportionally to weights.
// Non-positive weights are ignored; all-zero weights fall back to index 0.
func (r *Rand) WeightedIndex(weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}
	target := r.src.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		target -= w
		if target < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// Shuffle permutes s in place (Fisher-Yates).
func Shuffle[T any](r *Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

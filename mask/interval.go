// Package mask defines the time intervals that the masked reconstruction
// pipeline silences. Intervals are expressed as fractions of the total
// signal duration so they stay valid across sample rates and signal lengths.
package mask

import "math"

// Interval is a time span to silence, expressed as fractions of the total
// signal duration. Start and Duration are expected in [0, 1].
type Interval struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Label    string  `json:"label,omitempty"`
}

// End returns the interval's end position as a fraction of total duration
func (iv Interval) End() float64 {
	return iv.Start + iv.Duration
}

// Normalize clamps the interval to [0, 1]. Overshooting either edge is
// treated as "to the edge" rather than an error; intervals containing NaN
// or that clamp to a non-positive duration come back with ok=false.
func (iv Interval) Normalize() (Interval, bool) {
	if math.IsNaN(iv.Start) || math.IsNaN(iv.Duration) {
		return Interval{}, false
	}

	start := math.Max(0, math.Min(1, iv.Start))
	end := math.Max(0, math.Min(1, iv.End()))
	if end <= start {
		return Interval{}, false
	}

	return Interval{Start: start, Duration: end - start, Label: iv.Label}, true
}

// Contains reports whether pos (a fraction of total duration) falls inside
// the interval. The start edge is inclusive, the end edge exclusive, so
// adjacent intervals never double-count a frame.
func (iv Interval) Contains(pos float64) bool {
	return pos >= iv.Start && pos < iv.End()
}

// List is an ordered set of mask intervals
type List []Interval

// Normalize clamps every interval to [0, 1] and drops degenerate ones.
// It returns the cleaned list and the number of intervals dropped.
func (l List) Normalize() (List, int) {
	if len(l) == 0 {
		return nil, 0
	}

	out := make(List, 0, len(l))
	dropped := 0
	for _, iv := range l {
		norm, ok := iv.Normalize()
		if !ok {
			dropped++
			continue
		}
		out = append(out, norm)
	}

	return out, dropped
}

// Covers reports whether pos falls inside any interval in the list
func (l List) Covers(pos float64) bool {
	for _, iv := range l {
		if iv.Contains(pos) {
			return true
		}
	}
	return false
}

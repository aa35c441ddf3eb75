// Package tier defines the five ordinal ranking tiers, their score bands and
// the rank-to-score interpolation used everywhere a score is derived.
package tier

import (
	"fmt"
	"math"
	"strings"
)

// Tier is one of the five ordered bands, S (best) through D (worst).
// The zero value is S.
type Tier int

// Tiers in order, best first.
const (
	S Tier = iota
	A
	B
	C
	D
)

var tierNames = [...]string{"S", "A", "B", "C", "D"}

// Band is the inclusive numeric interval a tier's scores live in.
type Band struct {
	Min float64
	Max float64
}

// bands mirrors the 0-10 scale used by stored rankings.
var bands = [...]Band{
	S: {Min: 9.0, Max: 10.0},
	A: {Min: 8.0, Max: 8.9},
	B: {Min: 7.0, Max: 7.9},
	C: {Min: 6.0, Max: 6.9},
	D: {Min: 0.0, Max: 5.9},
}

// All returns every tier ordered best to worst.
func All() []Tier {
	return []Tier{S, A, B, C, D}
}

// Parse converts a tier letter (case-insensitive) into a Tier.
func Parse(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S":
		return S, nil
	case "A":
		return A, nil
	case "B":
		return B, nil
	case "C":
		return C, nil
	case "D":
		return D, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Valid reports whether t is one of the five tiers.
func (t Tier) Valid() bool {
	return t >= S && t <= D
}

func (t Tier) String() string {
	if t.Valid() {
		return tierNames[t]
	}
	return "?"
}

// Band returns the score band for t. Invalid tiers get the D band.
func (t Tier) Band() Band {
	if !t.Valid() {
		return bands[D]
	}
	return bands[t]
}

// Better reports whether t ranks above other.
func (t Tier) Better(other Tier) bool {
	return t < other
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Midpoint returns the centre of the band.
func (b Band) Midpoint() float64 {
	return (b.Min + b.Max) / 2
}

// Clamp limits x to [Min, Max]. NaN maps to the midpoint.
func (b Band) Clamp(x float64) float64 {
	if math.IsNaN(x) {
		return b.Midpoint()
	}
	if x < b.Min {
		return b.Min
	}
	if x > b.Max {
		return b.Max
	}
	return x
}

// Contains reports whether x lies inside the band, edges included.
func (b Band) Contains(x float64) bool {
	return x >= b.Min && x <= b.Max
}

// NaturalTier returns the tier a score belongs to by band membership alone:
// the first tier, scanning S to D, whose Min the score meets. A score equal
// to a band's Min belongs to that band; scores below every Min fall to D.
func NaturalTier(score float64) Tier {
	for _, t := range All() {
		if score >= bands[t].Min {
			return t
		}
	}
	return D
}

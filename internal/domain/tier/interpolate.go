package tier

// Interpolate maps a 0-based rank position inside a band to a score.
// Index 0 gets max, index total-1 gets min, positions in between are linear.
// A sole occupant (total <= 1) always gets max. Indexes outside [0, total)
// extrapolate past the band edges, which is how drift becomes visible.
func Interpolate(index, total int, min, max float64) float64 {
	if total <= 1 {
		return max
	}
	return max - float64(index)*(max-min)/float64(total-1)
}

// ScoreAt interpolates a position inside t's band.
func ScoreAt(t Tier, index, total int) float64 {
	b := t.Band()
	return Interpolate(index, total, b.Min, b.Max)
}

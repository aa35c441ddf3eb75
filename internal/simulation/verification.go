package simulation

import (
	"fmt"

	"github.com/marquee/tierlist/internal/domain/tier"
	"github.com/marquee/tierlist/internal/domain/types"
)

// Report is the verification result for one user.
type Report struct {
	UserID     string
	Entries    int
	Inversions int // pairs in the same tier stored against the hidden order
	Misplaced  int // entries whose tier differs from the one they were inserted into
}

// verify compares stored entries with the movies that produced them.
func verify(userID string, entries []types.Entry, movies []Movie) (Report, error) {
	byID := make(map[string]Movie, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
	}

	rep := Report{UserID: userID, Entries: len(entries)}
	perTier := make(map[tier.Tier][]float64)
	for _, e := range entries {
		m, ok := byID[e.ID]
		if !ok {
			return rep, fmt.Errorf("user %s: unknown entry %s", userID, e.ID)
		}
		if e.Tier.String() != m.Tier {
			rep.Misplaced++
		}
		perTier[e.Tier] = append(perTier[e.Tier], m.Hidden)
	}

	for _, hidden := range perTier {
		rep.Inversions += inversions(hidden)
	}
	return rep, nil
}

// inversions counts pairs i < j with hidden[i] < hidden[j]. Entries are in
// rank order, best first.
func inversions(hidden []float64) int {
	n := 0
	for i := range hidden {
		for j := i + 1; j < len(hidden); j++ {
			if hidden[i] < hidden[j] {
				n++
			}
		}
	}
	return n
}

// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"strings"

	"github.com/marquee/tierlist/internal/domain/tier"
)

// Bracket is a coarse content category used as a prediction signal.
type Bracket string

// Known content brackets. The empty bracket means unknown.
const (
	BracketNone        Bracket = ""
	BracketCommercial  Bracket = "commercial"
	BracketArtisan     Bracket = "artisan"
	BracketDocumentary Bracket = "documentary"
	BracketAnimation   Bracket = "animation"
)

// ParseBracket normalises a bracket name. Unknown names map to BracketNone.
func ParseBracket(s string) Bracket {
	switch b := Bracket(strings.ToLower(strings.TrimSpace(s))); b {
	case BracketCommercial, BracketArtisan, BracketDocumentary, BracketAnimation:
		return b
	}
	return BracketNone
}

// Item is a movie placed (or about to be placed) in a user's tiers.
// Rank is the source of truth; scores are always derived from it.
type Item struct {
	ID            string    // opaque identifier
	Title         string    // display only
	Genres        []string  // ordered, first is primary
	Tier          tier.Tier // current tier
	Rank          int       // 0-based position inside Tier, 0 = best
	Bracket       Bracket   // optional content bracket
	ExternalScore *float64  // optional 0-10 popularity score from an outside source
}

// PrimaryGenre returns the first genre, or "" when the item has none.
func (it Item) PrimaryGenre() string {
	if len(it.Genres) == 0 {
		return ""
	}
	return it.Genres[0]
}

// SameGenre reports whether two genre names match, ignoring case and padding.
func SameGenre(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// InTier returns the items of t ordered best to worst (rank, then id).
// The input is not modified.
func InTier(items []Item, t tier.Tier) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Tier == t {
			out = append(out, it)
		}
	}
	SortByRank(out)
	return out
}

// SortByRank orders items by tier, then rank, then id.
func SortByRank(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Tier != items[j].Tier {
			return items[i].Tier < items[j].Tier
		}
		if items[i].Rank != items[j].Rank {
			return items[i].Rank < items[j].Rank
		}
		return items[i].ID < items[j].ID
	})
}

// CountByTier returns how many items sit in each tier.
func CountByTier(items []Item) map[tier.Tier]int {
	counts := make(map[tier.Tier]int, len(tier.All()))
	for _, it := range items {
		counts[it.Tier]++
	}
	return counts
}

// Score derives the item's score from its position, given the tier size.
func (it Item) Score(tierSize int) float64 {
	return tier.ScoreAt(it.Tier, it.Rank, tierSize)
}

// Package reclassify detects items whose derived score has drifted out of
// their tier and proposes moving them to the tier the score belongs to.
package reclassify

import (
	"sort"

	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/tier"
)

const (
	// MinItemsForScores is the collection size below which scores are not
	// trusted and no reclassification happens.
	MinItemsForScores = 20
	// MaxTolerance is the widest allowance, in score points, outside a band.
	MaxTolerance = 0.5
)

// Change is a proposed tier migration for one item.
type Change struct {
	ID    string    `json:"id"`
	From  tier.Tier `json:"from"`
	To    tier.Tier `json:"to"`
	Score float64   `json:"score"`
}

// Tolerance returns the allowed drift for a collection of total items.
// It shrinks as the collection grows and never exceeds MaxTolerance.
func Tolerance(total int) float64 {
	if total <= 0 {
		return MaxTolerance
	}
	return min(MaxTolerance, MaxTolerance*float64(MinItemsForScores)/float64(total))
}

// Reclassify returns the proposed changes for a full collection snapshot.
// The input is not modified. Changes are ordered by current tier, then rank.
func Reclassify(all []model.Item) []Change {
	if len(all) < MinItemsForScores {
		return nil
	}

	tol := Tolerance(len(all))
	sizes := model.CountByTier(all)

	sorted := make([]model.Item, len(all))
	copy(sorted, all)
	model.SortByRank(sorted)

	var changes []Change
	for _, it := range sorted {
		score := it.Score(sizes[it.Tier])
		band := it.Tier.Band()
		if score >= band.Min-tol && score <= band.Max+tol {
			continue
		}
		natural := tier.NaturalTier(score)
		if natural == it.Tier {
			continue
		}
		changes = append(changes, Change{ID: it.ID, From: it.Tier, To: natural, Score: score})
	}
	return changes
}

// Apply returns a copy of all with changes applied. Every tier touched by a
// change is renormalised to contiguous 0-based ranks. A promoted item enters
// at the bottom of its new tier and a demoted item at the top. Changes naming
// unknown ids are ignored.
func Apply(all []model.Item, changes []Change) []model.Item {
	out := make([]model.Item, len(all))
	copy(out, all)
	if len(changes) == 0 {
		return out
	}

	byID := make(map[string]Change, len(changes))
	for _, c := range changes {
		byID[c.ID] = c
	}

	affected := make(map[tier.Tier]bool)
	type placed struct {
		item  model.Item
		group int // 0 demoted in, 1 stayed, 2 promoted in
		from  tier.Tier
		rank  int
	}
	groups := make(map[tier.Tier][]placed)

	for _, it := range out {
		c, ok := byID[it.ID]
		if !ok || c.To == it.Tier || !c.To.Valid() {
			groups[it.Tier] = append(groups[it.Tier], placed{item: it, group: 1, from: it.Tier, rank: it.Rank})
			continue
		}
		affected[it.Tier] = true
		affected[c.To] = true
		group := 0
		if c.To.Better(it.Tier) {
			group = 2
		}
		p := placed{group: group, from: it.Tier, rank: it.Rank}
		it.Tier = c.To
		p.item = it
		groups[c.To] = append(groups[c.To], p)
	}

	res := make([]model.Item, 0, len(out))
	for _, t := range tier.All() {
		members := groups[t]
		if affected[t] {
			sort.SliceStable(members, func(i, j int) bool {
				a, b := members[i], members[j]
				if a.group != b.group {
					return a.group < b.group
				}
				// Arrivals keep their relative order from the source tiers.
				if a.from != b.from {
					return a.from < b.from
				}
				if a.rank != b.rank {
					return a.rank < b.rank
				}
				return a.item.ID < b.item.ID
			})
			for i := range members {
				members[i].item.Rank = i
			}
		}
		for _, m := range members {
			res = append(res, m.item)
		}
		delete(groups, t)
	}
	// Items outside the known tiers are passed through untouched.
	for _, it := range out {
		if _, ok := groups[it.Tier]; ok {
			res = append(res, it)
		}
	}
	return res
}

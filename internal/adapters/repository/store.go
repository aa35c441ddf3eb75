// Package repository holds users' ranked collections.
package repository

import (
	"context"

	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/reclassify"
	"github.com/marquee/tierlist/internal/domain/tier"
)

// Store provides read/write access to every user's tiers.
//
// Ranks inside a tier are always contiguous and 0-based. Returned items are
// copies; mutating them does not change the store.
type Store interface {
	// Items returns the user's items ordered S to D, then by rank.
	// An unknown user has no items.
	Items(ctx context.Context, userID string) ([]model.Item, error)

	// Tier returns the items of one tier ordered by rank.
	Tier(ctx context.Context, userID string, t tier.Tier) ([]model.Item, error)

	// Get returns one item. Returns ErrNotFound if it is not ranked.
	Get(ctx context.Context, userID, itemID string) (model.Item, error)

	// Insert places item at rank in tier t, shifting worse items down.
	// Rank is clamped into [0, len(tier)]. Returns ErrDuplicate if the item
	// is already ranked anywhere.
	Insert(ctx context.Context, userID string, item model.Item, t tier.Tier, rank int) (model.Item, error)

	// Move relocates a ranked item to tier t at rank, closing the gap it
	// leaves behind.
	Move(ctx context.Context, userID, itemID string, t tier.Tier, rank int) (model.Item, error)

	// Remove deletes an item and closes the gap.
	Remove(ctx context.Context, userID, itemID string) error

	// Apply performs a reclassification in one critical section and returns
	// the changes that still matched the stored state.
	Apply(ctx context.Context, userID string, changes []reclassify.Change) ([]reclassify.Change, error)

	// Count returns the number of items the user has ranked.
	Count(ctx context.Context, userID string) int

	// Users returns every user id holding at least one item, sorted.
	Users(ctx context.Context) []string
}

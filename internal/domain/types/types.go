// Package types contains the JSON shapes exchanged over the API.
package types

import (
	"time"

	"github.com/marquee/tierlist/internal/domain/insertion"
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/prediction"
	"github.com/marquee/tierlist/internal/domain/reclassify"
	"github.com/marquee/tierlist/internal/domain/tier"
)

// Session statuses.
const (
	StatusActive = "active"
	StatusDone   = "done"
)

// Entry is one ranked item with its derived score.
type Entry struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	Genres        []string  `json:"genres,omitempty"`
	Bracket       string    `json:"bracket,omitempty"`
	ExternalScore *float64  `json:"external_score,omitempty"`
	Tier          tier.Tier `json:"tier"`
	Rank          int       `json:"rank"`
	Score         float64   `json:"score"`
}

// NewEntry derives an entry from an item sitting in a tier of tierSize items.
func NewEntry(it model.Item, tierSize int) Entry {
	return Entry{
		ID:            it.ID,
		Title:         it.Title,
		Genres:        it.Genres,
		Bracket:       string(it.Bracket),
		ExternalScore: it.ExternalScore,
		Tier:          it.Tier,
		Rank:          it.Rank,
		Score:         it.Score(tierSize),
	}
}

// Entries converts a rank-ordered collection, scoring each item against the
// size of its own tier.
func Entries(items []model.Item) []Entry {
	sizes := model.CountByTier(items)
	out := make([]Entry, len(items))
	for i, it := range items {
		out[i] = NewEntry(it, sizes[it.Tier])
	}
	return out
}

// Candidate is an item offered in a comparison.
type Candidate struct {
	ID     string   `json:"id"`
	Title  string   `json:"title,omitempty"`
	Genres []string `json:"genres,omitempty"`
}

func candidate(it model.Item) Candidate {
	return Candidate{ID: it.ID, Title: it.Title, Genres: it.Genres}
}

// Comparison asks which of two items is better.
type Comparison struct {
	Phase       insertion.Phase `json:"phase"`
	Round       int             `json:"round"`
	NewItem     Candidate       `json:"new_item"`
	Target      Candidate       `json:"target"`
	TargetIndex int             `json:"target_index"`
}

// Result is a finished placement.
type Result struct {
	Tier        tier.Tier `json:"tier"`
	Rank        int       `json:"rank"`
	Score       float64   `json:"score"`
	Comparisons int       `json:"comparisons"`
	Skipped     bool      `json:"skipped"`
	Predicted   *float64  `json:"predicted,omitempty"`
}

// Session is the client's view of an insertion session.
type Session struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Status     string            `json:"status"`
	Tier       tier.Tier         `json:"tier"`
	Low        int               `json:"low"`
	High       int               `json:"high"`
	Trail      []insertion.Phase `json:"trail"`
	CanUndo    bool              `json:"can_undo"`
	Comparison *Comparison       `json:"comparison,omitempty"`
	Result     *Result           `json:"result,omitempty"`
	Entry      *Entry            `json:"entry,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// FromStep fills the comparison or result part of s.
func (s *Session) FromStep(step insertion.Step) {
	s.Comparison, s.Result = nil, nil
	if c := step.Comparison; c != nil {
		s.Status = StatusActive
		s.Comparison = &Comparison{
			Phase:       c.Phase,
			Round:       c.Round,
			NewItem:     candidate(c.NewItem),
			Target:      candidate(c.Target),
			TargetIndex: c.TargetIndex,
		}
	}
	if r := step.Result; r != nil {
		s.Status = StatusDone
		s.Result = &Result{
			Tier:        r.Tier,
			Rank:        r.Rank,
			Score:       r.Score,
			Comparisons: r.Comparisons,
			Skipped:     r.Skipped,
			Predicted:   r.Predicted,
		}
	}
}

// Prediction reports the signals for a prospective item and the seed score.
type Prediction struct {
	Tier      tier.Tier          `json:"tier"`
	Signals   prediction.Signals `json:"signals"`
	Predicted float64            `json:"predicted"`
}

// Reclassification reports proposed or applied tier migrations.
type Reclassification struct {
	UserID    string              `json:"user_id"`
	Tolerance float64             `json:"tolerance"`
	Total     int                 `json:"total"`
	Applied   bool                `json:"applied"`
	Changes   []reclassify.Change `json:"changes"`
}

// Stats summarises the running service.
type Stats struct {
	ActiveSessions    int            `json:"active_sessions"`
	CompletedSessions int64          `json:"completed_sessions"`
	Users             int            `json:"users"`
	Items             int            `json:"items"`
	ItemsByTier       map[string]int `json:"items_by_tier"`
	QueueDepth        int            `json:"queue_depth"`
	JobsProcessed     int64          `json:"jobs_processed"`
	Workers           int            `json:"workers"`
	DedupeEntries     int64          `json:"dedupe_entries"`
	Uptime            string         `json:"uptime"`
}

// Package prediction estimates a starting score for an item the user has not
// ranked yet, from the user's own history and an optional outside score.
package prediction

import (
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/tier"
)

// Default prediction constants.
const (
	// NewUserThreshold is the number of ranked items below which a user's
	// genre and bracket history is not trusted.
	NewUserThreshold = 15

	defaultGenreWeight   = 0.45
	defaultGlobalWeight  = 0.35
	defaultBracketWeight = 0.20
)

// Signals are the independent estimates feeding a prediction. Nil means the
// signal is unavailable; it is never replaced by zero.
type Signals struct {
	GenreAffinity   *float64 `json:"genre_affinity"`
	GlobalScore     *float64 `json:"global_score"`
	BracketAffinity *float64 `json:"bracket_affinity"`
	TotalRanked     int      `json:"total_ranked"`
}

// Weights are the relative contributions of each signal.
type Weights struct {
	Genre   float64
	Global  float64
	Bracket float64
}

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithNewUserThreshold sets the history size below which only the outside
// score is trusted.
func WithNewUserThreshold(n int) Option {
	return func(p *Predictor) {
		if n >= 0 {
			p.newUserThreshold = n
		}
	}
}

// WithWeights sets the signal weights. Negative weights are ignored.
func WithWeights(w Weights) Option {
	return func(p *Predictor) {
		if w.Genre >= 0 && w.Global >= 0 && w.Bracket >= 0 && w.Genre+w.Global+w.Bracket > 0 {
			p.weights = w
		}
	}
}

// Predictor blends Signals into a score estimate.
type Predictor struct {
	newUserThreshold int
	weights          Weights
}

// NewPredictor creates a predictor with configuration options.
func NewPredictor(opts ...Option) *Predictor {
	p := &Predictor{
		newUserThreshold: NewUserThreshold,
		weights: Weights{
			Genre:   defaultGenreWeight,
			Global:  defaultGlobalWeight,
			Bracket: defaultBracketWeight,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultPredictor = NewPredictor()

// ComputeSignals derives the prediction signals for an item of the given
// genre and bracket about to enter tier t.
func ComputeSignals(all []model.Item, genre string, bracket model.Bracket, external *float64, t tier.Tier) Signals {
	sizes := model.CountByTier(all)
	band := t.Band()

	var genreSum, bracketSum float64
	var genreN, bracketN int
	for _, it := range all {
		if it.Tier != t {
			continue
		}
		score := it.Score(sizes[t])
		if model.SameGenre(it.PrimaryGenre(), genre) {
			genreSum += score
			genreN++
		}
		if bracket != model.BracketNone && it.Bracket == bracket {
			bracketSum += score
			bracketN++
		}
	}

	s := Signals{TotalRanked: len(all)}
	if genreN > 0 {
		s.GenreAffinity = ptr(genreSum / float64(genreN))
	}
	if bracketN > 0 {
		s.BracketAffinity = ptr(bracketSum / float64(bracketN))
	}
	if external != nil {
		s.GlobalScore = ptr(band.Clamp(*external))
	}
	return s
}

// PredictScore blends signals into a starting score for tier t using the
// default weights and threshold.
func PredictScore(s Signals, t tier.Tier) float64 {
	return defaultPredictor.Predict(s, t)
}

// Predict blends signals into a starting score for tier t. The result is
// always inside t's band.
func (p *Predictor) Predict(s Signals, t tier.Tier) float64 {
	band := t.Band()

	if s.TotalRanked < p.newUserThreshold {
		if s.GlobalScore != nil {
			return band.Clamp(*s.GlobalScore)
		}
		return band.Midpoint()
	}

	var sum, weight float64
	add := func(v *float64, w float64) {
		if v == nil || w == 0 {
			return
		}
		sum += *v * w
		weight += w
	}
	add(s.GenreAffinity, p.weights.Genre)
	add(s.GlobalScore, p.weights.Global)
	add(s.BracketAffinity, p.weights.Bracket)

	if weight == 0 {
		return band.Midpoint()
	}
	// Dividing by the present weight renormalises them to sum to 1.
	return band.Clamp(sum / weight)
}

func ptr(v float64) *float64 { return &v }

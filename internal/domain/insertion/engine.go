// Package insertion places a new item inside a tier by asking a short
// sequence of head-to-head questions.
//
// The engine keeps a half-open bracket [Low, High) over the tier's items,
// sorted best to worst. Preferring the new item over the item at index i
// caps High at i; preferring the existing item lifts Low past i. When the
// bracket closes the session is done with rank Low. Genre peers are asked
// first, an other-genre item then sanity-checks the genre-local answer, and
// plain bisection settles whatever is left.
//
// An Engine serves one session and is not safe for concurrent use.
package insertion

import (
	"fmt"
	"math"
	"strings"

	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/prediction"
	"github.com/marquee/tierlist/internal/domain/tier"
)

// State is a snapshot of the engine. Undo restores states wholesale.
type State struct {
	Phase      Phase
	Low        int
	High       int
	GenrePeers []int // tier indices of genre peers, best first
	Stage      Stage
	Round      int // comparisons answered so far

	trail int
}

// Comparison is a question for the user: which of the two items is better.
type Comparison struct {
	Phase       Phase
	Round       int // 1-based number of this question
	NewItem     model.Item
	Target      model.Item
	TargetIndex int // Target's index inside the tier
}

// Result is the engine's final placement.
type Result struct {
	Tier        tier.Tier
	Rank        int
	Score       float64
	Comparisons int
	Skipped     bool
	Predicted   *float64 // seed estimate, when signals were supplied
}

// Step is either the next Comparison or the final Result.
type Step struct {
	Comparison *Comparison
	Result     *Result
}

// Done reports whether the step carries a result.
func (s Step) Done() bool {
	return s.Result != nil
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPredictor sets the predictor used for the seed estimate.
func WithPredictor(p *prediction.Predictor) Option {
	return func(e *Engine) {
		if p != nil {
			e.predictor = p
		}
	}
}

// Engine is the comparison state machine for one insertion session.
type Engine struct {
	predictor *prediction.Predictor

	started   bool
	item      model.Item
	target    tier.Tier
	items     []model.Item // target tier, best first
	others    []int        // tier indices of other-genre items, best first
	predicted *float64

	state   State
	history []State
	trail   []Phase
}

// NewEngine creates an engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{predictor: prediction.NewPredictor()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins placing item into target. all is the user's whole collection;
// only items already in target are compared against. signals, when non-nil,
// produce a seed estimate reported with the result. Calling Start again
// discards any previous session.
func (e *Engine) Start(item model.Item, target tier.Tier, all []model.Item, signals *prediction.Signals) (Step, error) {
	if strings.TrimSpace(item.ID) == "" {
		return Step{}, fmt.Errorf("start: %w: empty id", ErrInvalidItem)
	}
	if !target.Valid() {
		return Step{}, fmt.Errorf("start %s: %w: %d", item.ID, tier.ErrUnknownTier, int(target))
	}
	for _, it := range all {
		if it.ID == item.ID {
			return Step{}, fmt.Errorf("start %s: %w", item.ID, ErrDuplicateItem)
		}
	}

	item.Tier = target
	*e = Engine{predictor: e.predictor, started: true, item: item, target: target}
	e.items = model.InTier(all, target)

	genre := item.PrimaryGenre()
	var peers []int
	for i, it := range e.items {
		if model.SameGenre(it.PrimaryGenre(), genre) {
			peers = append(peers, i)
		} else {
			e.others = append(e.others, i)
		}
	}
	e.state = State{Low: 0, High: len(e.items), GenrePeers: peers}

	if signals != nil {
		v := e.predictor.Predict(*signals, target)
		e.predicted = &v
	}

	switch {
	case len(e.items) == 0:
		e.enter(doneStage{rank: 0})
	case len(peers) == 0:
		e.enterCrossGenre()
	default:
		e.enter(probeStage{peer: len(peers) / 2})
	}
	return e.step(), nil
}

// Submit answers the current comparison. winnerID must be the new item's id
// or the presented target's id.
func (e *Engine) Submit(winnerID string) (Step, error) {
	if err := e.live("submit"); err != nil {
		return Step{}, err
	}

	idx := e.targetIndex()
	var won bool
	switch winnerID {
	case e.item.ID:
		won = true
	case e.items[idx].ID:
		won = false
	default:
		return Step{}, fmt.Errorf("submit %q: %w", winnerID, ErrInvalidChoice)
	}

	e.push()
	st := &e.state
	st.Round++

	switch s := st.Stage.(type) {
	case probeStage:
		at := st.GenrePeers[s.peer]
		if !won {
			st.Low = max(st.Low, at+1)
			e.enterSettlement()
			break
		}
		st.High = min(st.High, at)
		if s.peer == 0 {
			e.enterCrossGenre()
		} else {
			e.enter(escalationStage{peer: s.peer - 1})
		}
	case escalationStage:
		at := st.GenrePeers[s.peer]
		if !won {
			st.Low = max(st.Low, at+1)
			e.enterCrossGenre()
			break
		}
		st.High = min(st.High, at)
		if s.peer == 0 {
			e.enterCrossGenre()
		} else {
			e.enter(escalationStage{peer: s.peer - 1})
		}
	case crossGenreStage:
		ref := s.ref
		if won {
			// A win outside the bracket only confirms it.
			if ref >= st.Low && ref < st.High {
				st.High = ref
			}
		} else {
			switch {
			case ref < st.Low:
			case ref < st.High:
				st.Low = ref + 1
			default:
				st.Low, st.High = ref+1, len(e.items)
			}
		}
		e.enterSettlement()
	case settlementStage:
		mid := (st.Low + st.High) / 2
		if won {
			st.High = mid
		} else {
			st.Low = mid + 1
		}
		e.enterSettlement()
	case doneStage:
		return Step{}, fmt.Errorf("submit: %w", ErrSessionComplete)
	default:
		return Step{}, fmt.Errorf("submit: unknown stage %T", s)
	}
	return e.step(), nil
}

// Skip ends the session at the midpoint of the current bracket.
func (e *Engine) Skip() (Step, error) {
	if err := e.live("skip"); err != nil {
		return Step{}, err
	}
	e.push()
	e.enter(doneStage{rank: (e.state.Low + e.state.High) / 2, skipped: true})
	return e.step(), nil
}

// Undo restores the state before the last transition and returns it.
// It returns nil when there is nothing to undo.
func (e *Engine) Undo() (*State, error) {
	if err := e.live("undo"); err != nil {
		return nil, err
	}
	return e.pop(), nil
}

// Rollback reverts the last transition even when it finished the session,
// so a placement that could not be stored can be answered again. It
// reports whether anything was reverted.
func (e *Engine) Rollback() bool {
	if !e.started {
		return false
	}
	return e.pop() != nil
}

func (e *Engine) pop() *State {
	n := len(e.history)
	if n == 0 {
		return nil
	}
	prev := e.history[n-1]
	e.history = e.history[:n-1]
	e.state = prev
	e.trail = e.trail[:prev.trail]
	return &prev
}

// Step returns the current question or result without changing anything.
func (e *Engine) Step() (Step, error) {
	if !e.started {
		return Step{}, fmt.Errorf("step: %w", ErrNotStarted)
	}
	return e.step(), nil
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	return e.state
}

// Trail returns the phase of every stage entered so far, in order.
func (e *Engine) Trail() []Phase {
	out := make([]Phase, len(e.trail))
	copy(out, e.trail)
	return out
}

// Done reports whether the session has a final placement.
func (e *Engine) Done() bool {
	_, ok := e.state.Stage.(doneStage)
	return e.started && ok
}

// Item returns the item being placed.
func (e *Engine) Item() model.Item {
	return e.item
}

// Tier returns the target tier.
func (e *Engine) Tier() tier.Tier {
	return e.target
}

// Depth returns how many transitions can be undone.
func (e *Engine) Depth() int {
	return len(e.history)
}

func (e *Engine) live(op string) error {
	if !e.started {
		return fmt.Errorf("%s: %w", op, ErrNotStarted)
	}
	if e.Done() {
		return fmt.Errorf("%s: %w", op, ErrSessionComplete)
	}
	return nil
}

func (e *Engine) push() {
	e.history = append(e.history, e.state)
}

func (e *Engine) enter(s Stage) {
	e.state.Stage = s
	e.state.Phase = s.Phase()
	e.trail = append(e.trail, s.Phase())
	e.state.trail = len(e.trail)
}

func (e *Engine) enterCrossGenre() {
	if len(e.others) == 0 {
		e.enterSettlement()
		return
	}
	e.enter(crossGenreStage{ref: e.reference()})
}

func (e *Engine) enterSettlement() {
	e.enter(settlementStage{})
	if e.state.Low >= e.state.High {
		e.enter(doneStage{rank: e.state.Low})
	}
}

// reference picks the other-genre item nearest the bracket midpoint,
// preferring the better-ranked one on a tie.
func (e *Engine) reference() int {
	mid := float64(e.state.Low+e.state.High) / 2
	best, bestDist := -1, math.Inf(1)
	for _, i := range e.others {
		if d := math.Abs(float64(i) - mid); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (e *Engine) targetIndex() int {
	switch s := e.state.Stage.(type) {
	case probeStage:
		return e.state.GenrePeers[s.peer]
	case escalationStage:
		return e.state.GenrePeers[s.peer]
	case crossGenreStage:
		return s.ref
	case settlementStage:
		return (e.state.Low + e.state.High) / 2
	case doneStage:
		return -1
	default:
		return -1
	}
}

func (e *Engine) step() Step {
	if d, ok := e.state.Stage.(doneStage); ok {
		score := e.target.Band().Midpoint()
		if len(e.items) > 0 {
			score = tier.ScoreAt(e.target, d.rank, len(e.items)+1)
		}
		return Step{Result: &Result{
			Tier:        e.target,
			Rank:        d.rank,
			Score:       score,
			Comparisons: e.state.Round,
			Skipped:     d.skipped,
			Predicted:   e.predicted,
		}}
	}
	idx := e.targetIndex()
	return Step{Comparison: &Comparison{
		Phase:       e.state.Phase,
		Round:       e.state.Round + 1,
		NewItem:     e.item,
		Target:      e.items[idx],
		TargetIndex: idx,
	}}
}

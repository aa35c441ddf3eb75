package insertion

// Phase names the engine's current stage.
type Phase string

// Engine phases in the order a session normally moves through them.
const (
	PhaseProbe      Phase = "probe"
	PhaseEscalation Phase = "escalation"
	PhaseCrossGenre Phase = "cross_genre"
	PhaseSettlement Phase = "settlement"
	PhaseDone       Phase = "done"
)

// Stage is the closed set of phase variants. Each carries only the data its
// phase needs.
type Stage interface {
	Phase() Phase
	sealed()
}

// probeStage challenges the genre peer at position peer (among peers).
type probeStage struct{ peer int }

// escalationStage challenges a better genre peer after a probe win.
type escalationStage struct{ peer int }

// crossGenreStage challenges the other-genre item at tier index ref.
type crossGenreStage struct{ ref int }

// settlementStage bisects the remaining bracket.
type settlementStage struct{}

type doneStage struct {
	rank    int
	skipped bool
}

func (probeStage) Phase() Phase      { return PhaseProbe }
func (escalationStage) Phase() Phase { return PhaseEscalation }
func (crossGenreStage) Phase() Phase { return PhaseCrossGenre }
func (settlementStage) Phase() Phase { return PhaseSettlement }
func (doneStage) Phase() Phase       { return PhaseDone }

func (probeStage) sealed()      {}
func (escalationStage) sealed() {}
func (crossGenreStage) sealed() {}
func (settlementStage) sealed() {}
func (doneStage) sealed()       {}

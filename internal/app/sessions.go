package service

import (
	"sync"
	"time"

	"github.com/marquee/tierlist/internal/domain/insertion"
	"github.com/marquee/tierlist/internal/domain/types"
	"github.com/marquee/tierlist/pkg/logger"
)

// session is one user's in-flight insertion. mu serialises every call into
// the engine.
type session struct {
	mu      sync.Mutex
	id      string
	userID  string
	engine  *insertion.Engine
	touched time.Time
	entry   *types.Entry // set once the placement is stored
	log     logger.Logger
}

func (ss *session) view() types.Session {
	st := ss.engine.State()
	v := types.Session{
		ID:        ss.id,
		UserID:    ss.userID,
		Tier:      ss.engine.Tier(),
		Low:       st.Low,
		High:      st.High,
		Trail:     ss.engine.Trail(),
		CanUndo:   !ss.engine.Done() && ss.engine.Depth() > 0,
		Entry:     ss.entry,
		UpdatedAt: ss.touched,
	}
	if step, err := ss.engine.Step(); err == nil {
		v.FromStep(step)
	}
	return v
}

// registry maps session ids to sessions.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) put(ss *session) {
	r.mu.Lock()
	r.sessions[ss.id] = ss
	r.mu.Unlock()
}

func (r *registry) get(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ss, ok := r.sessions[id]
	return ss, ok
}

func (r *registry) remove(id string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ss, ok := r.sessions[id]
	delete(r.sessions, id)
	return ss, ok
}

// active counts sessions still waiting for answers.
func (r *registry) active() int {
	r.mu.RLock()
	list := make([]*session, 0, len(r.sessions))
	for _, ss := range r.sessions {
		list = append(list, ss)
	}
	r.mu.RUnlock()

	n := 0
	for _, ss := range list {
		ss.mu.Lock()
		if !ss.engine.Done() {
			n++
		}
		ss.mu.Unlock()
	}
	return n
}

// expired removes and returns sessions untouched since before cutoff.
func (r *registry) expired(cutoff time.Time) []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session
	for id, ss := range r.sessions {
		ss.mu.Lock()
		stale := ss.touched.Before(cutoff)
		ss.mu.Unlock()
		if stale {
			delete(r.sessions, id)
			out = append(out, ss)
		}
	}
	return out
}

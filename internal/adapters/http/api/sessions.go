package api

import (
	"net/http"

	service "github.com/marquee/tierlist/internal/app"
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/tier"
)

// SessionsHandler drives insertion sessions.
type SessionsHandler struct {
	deps Dependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps Dependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// itemRequest describes the item being placed.
type itemRequest struct {
	ID            string   `json:"id" validate:"required,max=128"`
	Title         string   `json:"title" validate:"max=256"`
	Genres        []string `json:"genres" validate:"max=16,dive,required,max=64"`
	Bracket       string   `json:"bracket" validate:"omitempty,oneof=commercial artisan documentary animation"`
	ExternalScore *float64 `json:"external_score" validate:"omitempty,min=0,max=10"`
}

func (i itemRequest) item() model.Item {
	return model.Item{
		ID:            i.ID,
		Title:         i.Title,
		Genres:        i.Genres,
		Bracket:       model.ParseBracket(i.Bracket),
		ExternalScore: i.ExternalScore,
	}
}

type startRequest struct {
	UserID string      `json:"user_id" validate:"required,max=128"`
	Tier   string      `json:"tier" validate:"required,tier"`
	Item   itemRequest `json:"item" validate:"required"`
}

type choiceRequest struct {
	WinnerID  string `json:"winner_id" validate:"required,max=128"`
	RequestID string `json:"request_id" validate:"max=128"`
}

// HandleStart handles POST /sessions. A session that needs no comparison
// comes back already done.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		fail(w, r, err)
		return
	}

	sess, err := h.deps.StartSession(r.Context(), service.StartRequest{
		UserID: req.UserID,
		Item:   req.Item.item(),
		Tier:   t,
	})
	if err != nil {
		fail(w, r, Wrap("start session", err))
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleChoice handles POST /sessions/{id}/choice. Replaying a request_id
// returns the current view without advancing the session.
func (h *SessionsHandler) HandleChoice(w http.ResponseWriter, r *http.Request) {
	var req choiceRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := h.deps.Choose(r.Context(), r.PathValue("id"), req.WinnerID, req.RequestID)
	if err != nil {
		fail(w, r, Wrap("choose", err))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleSkip handles POST /sessions/{id}/skip.
func (h *SessionsHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Skip(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, Wrap("skip", err))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleUndo handles POST /sessions/{id}/undo.
func (h *SessionsHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Undo(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, Wrap("undo", err))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleAbandon handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Abandon(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

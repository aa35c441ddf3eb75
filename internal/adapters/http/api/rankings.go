package api

import (
	"net/http"
	"strconv"
	"strings"

	service "github.com/marquee/tierlist/internal/app"
	"github.com/marquee/tierlist/internal/domain/tier"
	"github.com/marquee/tierlist/internal/domain/types"
	"github.com/marquee/tierlist/internal/validation"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// RankingsHandler serves a user's ranked collection.
type RankingsHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps Dependencies) *RankingsHandler {
	return &RankingsHandler{deps: deps, maxLimit: maxLimit}
}

type listQuery struct {
	Tier   string `query:"tier" validate:"omitempty,tier"`
	Genre  string `query:"genre" validate:"omitempty,max=64"`
	Offset int    `query:"offset" validate:"min=0"`
	Limit  int    `query:"limit" validate:"min=0"`
}

type moveRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
	Rank int    `json:"rank" validate:"min=0"`
}

type listResponse struct {
	UserID  string        `json:"user_id"`
	Count   int           `json:"count"`
	Entries []types.Entry `json:"entries"`
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

// HandleList handles GET /rankings/{user}?tier=&genre=&offset=&limit=.
func (h *RankingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := listQuery{
		Tier:  values.Get("tier"),
		Genre: strings.TrimSpace(values.Get("genre")),
		Limit: min(defaultLimit, h.maxLimit),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &q.Limit}, {"offset", &q.Offset}} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be an integer")
			return
		}
		*p.dst = n
	}
	if err := validation.ValidateStruct(&q); err != nil {
		fail(w, r, err)
		return
	}
	if q.Limit > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", "limit must be at most "+strconv.Itoa(h.maxLimit))
		return
	}

	var filter *tier.Tier
	if q.Tier != "" {
		t, err := tier.Parse(q.Tier)
		if err != nil {
			fail(w, r, err)
			return
		}
		filter = &t
	}

	user := r.PathValue("user")
	entries, err := h.deps.Rankings(r.Context(), user, service.RankingsQuery{
		Tier:   filter,
		Genre:  q.Genre,
		Offset: q.Offset,
		Limit:  q.Limit,
	})
	if err != nil {
		fail(w, r, Wrap("rankings", err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{UserID: user, Count: len(entries), Entries: entries})
}

// HandleMove handles PATCH /rankings/{user}/{item}.
func (h *RankingsHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		fail(w, r, err)
		return
	}
	entry, err := h.deps.MoveRanking(r.Context(), r.PathValue("user"), r.PathValue("item"), t, req.Rank)
	if err != nil {
		fail(w, r, Wrap("move", err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleRemove handles DELETE /rankings/{user}/{item}.
func (h *RankingsHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RemoveRanking(r.Context(), r.PathValue("user"), r.PathValue("item")); err != nil {
		fail(w, r, Wrap("remove", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReclassify handles POST /rankings/{user}/reclassify?apply=&mode=.
// mode=async queues the run and answers 202 with the job id.
func (h *RankingsHandler) HandleReclassify(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	query := r.URL.Query()

	if query.Get("mode") == "async" {
		id, err := h.deps.ReclassifyAsync(r.Context(), user)
		if err != nil {
			fail(w, r, Wrap("reclassify", err))
			return
		}
		writeJSON(w, http.StatusAccepted, jobResponse{JobID: id, UserID: user})
		return
	}

	apply := false
	if raw := query.Get("apply"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fail(w, r, NewKind("apply must be a boolean", ErrBadRequest))
			return
		}
		apply = v
	}

	res, err := h.deps.Reclassify(r.Context(), user, apply)
	if err != nil {
		fail(w, r, Wrap("reclassify", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

package api

import (
	"net/http"

	service "github.com/marquee/tierlist/internal/app"
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/tier"
)

// PredictionsHandler serves score predictions for unranked items.
type PredictionsHandler struct {
	deps Dependencies
}

// NewPredictionsHandler creates a new predictions handler.
func NewPredictionsHandler(deps Dependencies) *PredictionsHandler {
	return &PredictionsHandler{deps: deps}
}

type predictRequest struct {
	UserID        string   `json:"user_id" validate:"required,max=128"`
	Tier          string   `json:"tier" validate:"required,tier"`
	Genre         string   `json:"genre" validate:"max=64"`
	Bracket       string   `json:"bracket" validate:"omitempty,oneof=commercial artisan documentary animation"`
	ExternalScore *float64 `json:"external_score" validate:"omitempty,min=0,max=10"`
}

// HandlePredict handles POST /predictions.
func (h *PredictionsHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		fail(w, r, err)
		return
	}

	p, err := h.deps.Predict(r.Context(), service.PredictRequest{
		UserID:        req.UserID,
		Genre:         req.Genre,
		Bracket:       model.ParseBracket(req.Bracket),
		ExternalScore: req.ExternalScore,
		Tier:          t,
	})
	if err != nil {
		fail(w, r, Wrap("predict", err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

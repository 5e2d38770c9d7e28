package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/middleware"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/service"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

func (h *MatchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/find", h.Find)
	r.Get("/", h.ListMutual)
	r.Get("/{matchID}", h.Get)
	r.Post("/swipe", h.Swipe)
	r.Post("/unmatch", h.Unmatch)

	return r
}

// POST /matches/find
func (h *MatchHandler) Find(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	matches, err := h.matchService.FindMatches(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	if matches == nil {
		matches = []service.MatchView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// GET /matches
func (h *MatchHandler) ListMutual(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	matches, err := h.matchService.ListMutual(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list mutual matches")
		writeError(w, err)
		return
	}

	if matches == nil {
		matches = []service.MatchView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// GET /matches/{matchID}
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	matchID, err := parseID(r, "matchID")
	if err != nil {
		writeError(w, err)
		return
	}

	match, err := h.matchService.Get(r.Context(), user.ID, matchID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

type swipeRequest struct {
	MatchID  int64  `json:"matchId"`
	Decision string `json:"decision"`
}

// POST /matches/swipe
func (h *MatchHandler) Swipe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req swipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.MatchID <= 0 {
		writeError(w, apperrors.InvalidInput("matchId", "must be a positive integer"))
		return
	}

	result, err := h.matchService.Swipe(r.Context(), user.ID, req.MatchID, model.CallDecision(req.Decision))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type unmatchRequest struct {
	MatchID int64 `json:"matchId"`
}

// POST /matches/unmatch
func (h *MatchHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req unmatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.MatchID <= 0 {
		writeError(w, apperrors.InvalidInput("matchId", "must be a positive integer"))
		return
	}

	if err := h.matchService.Unmatch(r.Context(), user.ID, req.MatchID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unmatched"})
}

func parseID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput(param, "must be a positive integer")
	}
	return id, nil
}

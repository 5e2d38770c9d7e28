package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/middleware"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/service"
)

type MatchingHandler struct {
	matchingService *service.MatchingService
}

func NewMatchingHandler(matchingService *service.MatchingService) *MatchingHandler {
	return &MatchingHandler{
		matchingService: matchingService,
	}
}

func (h *MatchingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/start", h.Start)
	r.Post("/next", h.Next)
	r.Post("/decision", h.Decision)
	r.Post("/end", h.End)
	r.Get("/session/{token}", h.GetSession)
	r.Get("/pool", h.PoolStats)

	return r
}

type startMatchingRequest struct {
	MinAge             int      `json:"minAge"`
	MaxAge             int      `json:"maxAge"`
	PreferredInterests []string `json:"preferredInterests"`
}

// POST /matching/start
func (h *MatchingHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req startMatchingRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	session, err := h.matchingService.Start(r.Context(), user.ID, service.StartMatchingParams{
		MinAge:             req.MinAge,
		MaxAge:             req.MaxAge,
		PreferredInterests: req.PreferredInterests,
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to start matching session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

type pollNextRequest struct {
	SessionToken string `json:"sessionToken"`
}

// POST /matching/next
func (h *MatchingHandler) Next(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req pollNextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionToken == "" {
		writeError(w, apperrors.MissingRequired("sessionToken"))
		return
	}

	result, err := h.matchingService.PollNext(r.Context(), user.ID, req.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type matchingDecisionRequest struct {
	SessionToken string `json:"sessionToken"`
	CallID       string `json:"callId"`
	Decision     string `json:"decision"`
}

// POST /matching/decision
func (h *MatchingHandler) Decision(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req matchingDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionToken == "" {
		writeError(w, apperrors.MissingRequired("sessionToken"))
		return
	}
	if req.CallID == "" {
		writeError(w, apperrors.MissingRequired("callId"))
		return
	}

	stats, err := h.matchingService.RecordDecision(
		r.Context(), user.ID, req.SessionToken, req.CallID, model.EpisodeDecision(req.Decision))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

type endMatchingRequest struct {
	SessionToken string `json:"sessionToken"`
}

// POST /matching/end
func (h *MatchingHandler) End(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req endMatchingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionToken == "" {
		writeError(w, apperrors.MissingRequired("sessionToken"))
		return
	}

	stats, err := h.matchingService.End(r.Context(), user.ID, req.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// GET /matching/session/{token}
func (h *MatchingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	token := chi.URLParam(r, "token")

	session, err := h.matchingService.GetSession(r.Context(), user.ID, token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /matching/pool
func (h *MatchingHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.matchingService.PoolStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to compute pool stats")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

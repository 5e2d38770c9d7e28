package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/middleware"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/service"
)

type VideoHandler struct {
	videoService *service.VideoService
	signalRelay  *service.SignalRelay
	coordinator  *service.CallCoordinator
}

func NewVideoHandler(
	videoService *service.VideoService,
	signalRelay *service.SignalRelay,
	coordinator *service.CallCoordinator,
) *VideoHandler {
	return &VideoHandler{
		videoService: videoService,
		signalRelay:  signalRelay,
		coordinator:  coordinator,
	}
}

func (h *VideoHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/active", h.ActiveSessions)
	r.Get("/pending", h.PendingCalls)
	r.Post("/calls", h.StartCall)
	r.Get("/history/{matchID}", h.CallHistory)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/join", h.Join)
		r.Post("/end", h.EndCall)
		r.Post("/decision", h.Decision)
		r.Post("/signals", h.PostSignal)
		r.Get("/signals", h.DrainSignals)
	})

	return r
}

// POST /video/sessions/{sessionID}/join
func (h *VideoHandler) Join(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	result, err := h.videoService.Join(r.Context(), user.ID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /video/sessions/{sessionID}/end
func (h *VideoHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.videoService.EndCall(r.Context(), user.ID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GET /video/sessions/{sessionID}
func (h *VideoHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.videoService.Get(r.Context(), user.ID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

type callDecisionRequest struct {
	Decision string `json:"decision"`
}

// POST /video/sessions/{sessionID}/decision
//
// Decisions attach to the paired call session, so the video session
// here must belong to a continuous-matching call.
func (h *VideoHandler) Decision(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req callDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	video, err := h.videoService.Get(r.Context(), user.ID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if video.CallSessionID == nil {
		writeError(w, apperrors.InvalidInput("sessionId", "session is not part of a matching call"))
		return
	}

	result, err := h.coordinator.SubmitDecision(
		r.Context(), user.ID, *video.CallSessionID, model.CallDecision(req.Decision))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type postSignalRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	TargetUserID int64           `json:"targetUserId"`
}

// POST /video/sessions/{sessionID}/signals
func (h *VideoHandler) PostSignal(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req postSignalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := h.signalRelay.Post(r.Context(), user.ID, sessionID, service.PostSignalParams{
		Type:         req.Type,
		Payload:      req.Payload,
		TargetUserID: req.TargetUserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// GET /video/sessions/{sessionID}/signals
func (h *VideoHandler) DrainSignals(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.signalRelay.Drain(r.Context(), user.ID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if messages == nil {
		messages = []model.SignalMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": messages})
}

// GET /video/active
func (h *VideoHandler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sessions, err := h.videoService.ActiveSessions(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list active sessions")
		writeError(w, err)
		return
	}

	if sessions == nil {
		sessions = []model.VideoSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GET /video/pending
func (h *VideoHandler) PendingCalls(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sessions, err := h.videoService.PendingCalls(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list pending calls")
		writeError(w, err)
		return
	}

	if sessions == nil {
		sessions = []model.VideoSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type startCallRequest struct {
	MatchID int64 `json:"matchId"`
}

// POST /video/calls
func (h *VideoHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req startCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.MatchID <= 0 {
		writeError(w, apperrors.InvalidInput("matchId", "must be a positive integer"))
		return
	}

	session, err := h.videoService.StartCallForMatch(r.Context(), user.ID, req.MatchID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GET /video/history/{matchID}
func (h *VideoHandler) CallHistory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	matchID, err := parseID(r, "matchID")
	if err != nil {
		writeError(w, err)
		return
	}

	sessions, err := h.videoService.CallHistory(r.Context(), user.ID, matchID)
	if err != nil {
		writeError(w, err)
		return
	}

	if sessions == nil {
		sessions = []model.VideoSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

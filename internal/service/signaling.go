package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/config"
	"github.com/blinkdate/match-server-go/internal/metrics"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/redis"
	"github.com/blinkdate/match-server-go/internal/repository"
)

// SignalRelay ferries WebRTC connection-setup messages between the two
// participants of a video session. The server never touches media; it
// only holds signaling messages until the recipient's next poll.
type SignalRelay struct {
	videos      repository.VideoSessionRepository
	calls       repository.CallSessionRepository
	matches     repository.MatchRepository
	sessions    repository.MatchingSessionRepository
	mailbox     *Mailbox
	limiter     *RateLimiter
	activity    *ActivityService
	coordinator *CallCoordinator
	drainLimit  int
}

func NewSignalRelay(
	videos repository.VideoSessionRepository,
	calls repository.CallSessionRepository,
	matches repository.MatchRepository,
	sessions repository.MatchingSessionRepository,
	mailbox *Mailbox,
	limiter *RateLimiter,
	activity *ActivityService,
	coordinator *CallCoordinator,
	drainLimit int,
) *SignalRelay {
	return &SignalRelay{
		videos:      videos,
		calls:       calls,
		matches:     matches,
		sessions:    sessions,
		mailbox:     mailbox,
		limiter:     limiter,
		activity:    activity,
		coordinator: coordinator,
		drainLimit:  drainLimit,
	}
}

type PostSignalParams struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`

	// TargetUserID may be left as RecipientSelf (zero) to mean "the
	// other participant".
	TargetUserID int64 `json:"targetUserId"`
}

func validSignalType(signalType string) bool {
	switch signalType {
	case "offer", "answer", "ice-candidate":
		return true
	}
	return false
}

// Post enqueues one signaling message for the recipient.
func (r *SignalRelay) Post(ctx context.Context, userID int64, sessionID string, params PostSignalParams) error {
	if !validSignalType(params.Type) {
		return apperrors.InvalidInput("type", "must be offer, answer or ice-candidate")
	}
	if len(params.Payload) == 0 {
		return apperrors.MissingRequired("payload")
	}

	video, pairing, err := r.authorize(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if video.Status == model.CallStatusCompleted || video.Status == model.CallStatusCancelled {
		return apperrors.Gone("Call already ended")
	}

	recipient := params.TargetUserID
	if recipient == model.RecipientSelf {
		recipient = pairing.OtherParticipant(userID)
	}
	if recipient == userID || !pairing.IsParticipant(recipient) {
		return apperrors.InvalidInput("targetUserId", "must be the other participant")
	}

	err = r.mailbox.Post(ctx, sessionID, model.SignalMessage{
		Type:        params.Type,
		Payload:     params.Payload,
		SenderID:    userID,
		RecipientID: recipient,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return apperrors.Internal("Signal delivery unavailable").WithCause(err)
	}

	metrics.SignalsTotal.WithLabelValues("post").Inc()
	return nil
}

// Drain returns and removes every message waiting for the caller. This
// is the hot polling path, so it is rate limited per user before any
// database work happens.
func (r *SignalRelay) Drain(ctx context.Context, userID int64, sessionID string) ([]model.SignalMessage, error) {
	allowed, _ := r.limiter.CheckLimit(ctx, redis.RateLimitKey(userID), r.drainLimit, config.SignalRateLimitWindow)
	if !allowed {
		metrics.RateLimitRejections.Inc()
		return nil, apperrors.RateLimitExceeded()
	}

	if err := r.activity.Touch(ctx, userID); err != nil {
		return nil, err
	}

	if _, _, err := r.authorize(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	messages, err := r.mailbox.Drain(ctx, sessionID, userID)
	if err != nil {
		return nil, apperrors.Internal("Signal delivery unavailable").WithCause(err)
	}

	if len(messages) > 0 {
		metrics.SignalsTotal.WithLabelValues("drain").Add(float64(len(messages)))
	}
	return messages, nil
}

// authorize checks the caller is a participant. For instant-call
// sessions still in flight it additionally re-validates that both sides
// are still matching; a vanished counterpart cancels the call and
// surfaces as Gone so the client restarts its search instead of
// retrying.
func (r *SignalRelay) authorize(ctx context.Context, userID int64, sessionID string) (*model.VideoSession, model.Pairing, error) {
	video, err := r.videos.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, model.Pairing{}, apperrors.Database(err)
	}
	if video == nil {
		return nil, model.Pairing{}, apperrors.NotFound("Video session")
	}

	pairing, err := resolvePairing(ctx, video, r.calls, r.matches)
	if err != nil {
		return nil, model.Pairing{}, err
	}
	if !pairing.IsParticipant(userID) {
		return nil, model.Pairing{}, apperrors.Forbidden("Not a participant in this call")
	}

	openCall := pairing.Kind == model.PairingKindCall &&
		(pairing.Call.Status == model.CallStatusWaiting || pairing.Call.Status == model.CallStatusActive)
	if openCall {
		if err := r.requireFreshParticipants(ctx, pairing.Call); err != nil {
			return nil, model.Pairing{}, err
		}
	}

	return video, pairing, nil
}

func (r *SignalRelay) requireFreshParticipants(ctx context.Context, call *model.CallSession) error {
	cutoff := time.Now().Add(-config.MatchingSessionStaleAfter)

	for _, participant := range []int64{call.User1ID, call.User2ID} {
		session, err := r.sessions.FindActiveByUserID(ctx, participant)
		if err != nil {
			return apperrors.Database(err)
		}
		if session != nil && !session.LastActive.Before(cutoff) {
			continue
		}

		log.Info().
			Str("callId", call.ID).
			Int64("staleUserId", participant).
			Msg("cancelling call, participant stopped matching")

		if err := r.coordinator.CancelCall(ctx, call.ID); err != nil {
			return err
		}
		return apperrors.Gone("Partner is no longer matching")
	}
	return nil
}

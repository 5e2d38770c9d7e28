package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/config"
	"github.com/blinkdate/match-server-go/internal/metrics"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/redis"
	"github.com/blinkdate/match-server-go/internal/repository"
)

// CallCoordinator owns the ephemeral call sessions of the continuous
// flow: pairing two polling users into one shared session, collecting
// their post-call verdicts, and promoting mutual likes into durable
// matches.
type CallCoordinator struct {
	db           TxRunner
	rdb          *redis.Client
	users        repository.UserRepository
	sessions     repository.MatchingSessionRepository
	calls        repository.CallSessionRepository
	videos       repository.VideoSessionRepository
	matches      repository.MatchRepository
	mailbox      *Mailbox
	callDuration time.Duration
}

func NewCallCoordinator(
	db TxRunner,
	rdb *redis.Client,
	users repository.UserRepository,
	sessions repository.MatchingSessionRepository,
	calls repository.CallSessionRepository,
	videos repository.VideoSessionRepository,
	matches repository.MatchRepository,
	mailbox *Mailbox,
	callDuration time.Duration,
) *CallCoordinator {
	return &CallCoordinator{
		db:           db,
		rdb:          rdb,
		users:        users,
		sessions:     sessions,
		calls:        calls,
		videos:       videos,
		matches:      matches,
		mailbox:      mailbox,
		callDuration: callDuration,
	}
}

// PairUsers returns the open call session between the two users,
// creating one (with its video session) if none exists. Both users
// polling at once race to create the pair; the partial unique index on
// open canonical pairs makes the loser's insert fail, and it recovers
// by re-reading the winner's row. The created flag reports which side
// of the race this call took.
func (c *CallCoordinator) PairUsers(ctx context.Context, userA, userB int64) (*model.CallSession, *model.VideoSession, bool, error) {
	user1, user2 := model.CanonicalPair(userA, userB)
	reuseSince := time.Now().Add(-config.CallReuseWindow)

	existing, err := c.calls.FindOpenByPair(ctx, user1, user2, reuseSince)
	if err != nil {
		return nil, nil, false, apperrors.Database(err)
	}
	if existing != nil {
		video, err := c.openVideoFor(ctx, existing)
		if err != nil {
			return nil, nil, false, err
		}
		return existing, video, false, nil
	}

	var (
		call  *model.CallSession
		video *model.VideoSession
	)
	err = c.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		call, txErr = c.calls.WithTx(tx).Create(ctx, uuid.NewString(), user1, user2)
		if txErr != nil {
			return txErr
		}
		video, txErr = c.videos.WithTx(tx).Create(ctx, model.CreateVideoSessionParams{
			SessionID:     uuid.NewString(),
			CallSessionID: &call.ID,
			Duration:      int(c.callDuration.Seconds()),
		})
		return txErr
	})
	if err != nil {
		if !repository.IsUniqueViolation(err) {
			return nil, nil, false, apperrors.Database(err)
		}

		// Lost the creation race: the counterpart's poll inserted the
		// pair first. Their row is the session for both of us.
		winner, findErr := c.calls.FindOpenByPair(ctx, user1, user2, reuseSince)
		if findErr != nil {
			return nil, nil, false, apperrors.Database(findErr)
		}
		if winner == nil {
			return nil, nil, false, apperrors.Internal("Pair creation race left no usable call session")
		}
		video, err = c.openVideoFor(ctx, winner)
		if err != nil {
			return nil, nil, false, err
		}
		return winner, video, false, nil
	}

	metrics.PairingsTotal.Inc()
	log.Info().
		Str("callId", call.ID).
		Int64("user1", user1).
		Int64("user2", user2).
		Msg("call session created")

	return call, video, true, nil
}

// openVideoFor fetches the open video session attached to a call,
// creating a replacement if it was cancelled out from under the call.
func (c *CallCoordinator) openVideoFor(ctx context.Context, call *model.CallSession) (*model.VideoSession, error) {
	video, err := c.videos.FindOpenByCallSessionID(ctx, call.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if video != nil {
		return video, nil
	}

	video, err = c.videos.Create(ctx, model.CreateVideoSessionParams{
		SessionID:     uuid.NewString(),
		CallSessionID: &call.ID,
		Duration:      int(c.callDuration.Seconds()),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return video, nil
}

// CallDecisionResult reports the state of the pairing after one
// participant's verdict.
type CallDecisionResult struct {
	Call        *model.CallSession `json:"call"`
	BothDecided bool               `json:"bothDecided"`
	MutualMatch bool               `json:"mutualMatch"`
	Match       *model.Match       `json:"match,omitempty"`
}

// SubmitDecision records a participant's like/pass verdict on a
// finished call. Mutual like is the only combination that creates a
// durable match; every other resolved combination leaves the call
// completed with no match.
func (c *CallCoordinator) SubmitDecision(ctx context.Context, userID int64, callID string, decision model.CallDecision) (*CallDecisionResult, error) {
	if decision != model.DecisionLike && decision != model.DecisionPass {
		return nil, apperrors.InvalidInput("decision", "must be like or pass")
	}
	return c.recordDecision(ctx, userID, callID, decision, true)
}

// AcceptPairing records a like on behalf of a participant who chose to
// continue with the current partner. Continue arrives through the
// matching loop, possibly before the timed call has formally completed,
// so the completion gate does not apply; mutual acceptance completes
// the call itself.
func (c *CallCoordinator) AcceptPairing(ctx context.Context, userID int64, callID string) (*CallDecisionResult, error) {
	return c.recordDecision(ctx, userID, callID, model.DecisionLike, false)
}

func (c *CallCoordinator) recordDecision(ctx context.Context, userID int64, callID string, decision model.CallDecision, requireCompleted bool) (*CallDecisionResult, error) {
	call, err := c.calls.FindByID(ctx, callID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if call == nil {
		return nil, apperrors.NotFound("Call session")
	}
	if !call.IsParticipant(userID) {
		return nil, apperrors.Forbidden("Not a participant in this call")
	}
	if requireCompleted && !call.CallCompleted {
		return nil, apperrors.PreconditionFailed("Complete the video call before deciding")
	}

	call, err = c.calls.SetDecision(ctx, callID, userID, decision)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if call == nil {
		return nil, apperrors.NotFound("Call session")
	}

	result := &CallDecisionResult{Call: call, BothDecided: call.BothDecided()}
	if !call.BothLiked() {
		return result, nil
	}

	if !call.CallCompleted {
		// Mutual acceptance is what finishes a continue-path call.
		if err := c.calls.MarkEnded(ctx, callID, model.CallStatusCompleted, true); err != nil {
			return nil, apperrors.Database(err)
		}
		call.Status = model.CallStatusCompleted
		call.CallCompleted = true
	}

	match, err := c.promoteToMatch(ctx, call)
	if err != nil {
		return nil, err
	}
	result.MutualMatch = true
	result.Match = match
	return result, nil
}

// promoteToMatch turns a mutually liked call into a durable match and
// credits both users' matching sessions. Idempotent across double
// submits: an existing match between the pair is reused.
func (c *CallCoordinator) promoteToMatch(ctx context.Context, call *model.CallSession) (*model.Match, error) {
	existing, err := c.matches.FindBetween(ctx, call.User1ID, call.User2ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil && existing.Status == model.MatchStatusMatched {
		return existing, nil
	}

	score, err := c.scorePair(ctx, call.User1ID, call.User2ID)
	if err != nil {
		return nil, err
	}

	var match *model.Match
	err = c.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		match, txErr = c.matches.WithTx(tx).Create(ctx, model.CreateMatchParams{
			UserID:             call.User1ID,
			MatchedUserID:      call.User2ID,
			CompatibilityScore: score,
			Status:             model.MatchStatusMatched,
			CallCompleted:      true,
		})
		if txErr != nil {
			return txErr
		}

		sessions := c.sessions.WithTx(tx)
		for _, userID := range []int64{call.User1ID, call.User2ID} {
			session, txErr := sessions.FindActiveByUserID(ctx, userID)
			if txErr != nil {
				return txErr
			}
			if session == nil {
				continue
			}
			if txErr := sessions.IncrementSuccessfulMatches(ctx, session.ID); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	metrics.MatchesPromotedTotal.Inc()
	log.Info().
		Str("callId", call.ID).
		Int64("matchId", match.ID).
		Msg("mutual like, call promoted to match")

	return match, nil
}

func (c *CallCoordinator) scorePair(ctx context.Context, userA, userB int64) (float64, error) {
	profileA, err := c.users.FindProfile(ctx, userA)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	profileB, err := c.users.FindProfile(ctx, userB)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	if profileA == nil || profileB == nil {
		return 0, nil
	}

	interestsA, err := c.users.FindInterests(ctx, userA)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	interestsB, err := c.users.FindInterests(ctx, userB)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	return CompatibilityScore(profileA, profileB, interestsA, interestsB), nil
}

// CancelCall cancels an open call session together with its video
// session, mailboxes and join tracking.
func (c *CallCoordinator) CancelCall(ctx context.Context, callID string) error {
	call, err := c.calls.FindByID(ctx, callID)
	if err != nil {
		return apperrors.Database(err)
	}
	if call == nil {
		return nil
	}

	video, err := c.videos.FindOpenByCallSessionID(ctx, callID)
	if err != nil {
		return apperrors.Database(err)
	}

	if err := c.calls.MarkEnded(ctx, callID, model.CallStatusCancelled, false); err != nil {
		return apperrors.Database(err)
	}
	if err := c.videos.CancelByCallSessionID(ctx, callID); err != nil {
		return apperrors.Database(err)
	}

	if video != nil {
		c.clearSessionState(ctx, video.SessionID, call.User1ID, call.User2ID)
	}
	return nil
}

// CancelOpenCallsForUser cancels every open call the user is part of.
// Used when a matching session starts, ends or skips away.
func (c *CallCoordinator) CancelOpenCallsForUser(ctx context.Context, userID int64) error {
	ids, err := c.calls.CancelOpenForUser(ctx, userID)
	if err != nil {
		return apperrors.Database(err)
	}

	for _, callID := range ids {
		if err := c.cleanupCancelledCall(ctx, callID); err != nil {
			log.Warn().
				Err(err).
				Str("callId", callID).
				Msg("call artifact cleanup failed")
		}
	}
	return nil
}

// ReapStaleCalls cancels open call sessions older than cutoff and
// tears down their video sessions and Redis state. Run periodically,
// it catches pairs where both clients disappeared without ending.
func (c *CallCoordinator) ReapStaleCalls(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := c.calls.CancelStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, callID := range ids {
		if err := c.cleanupCancelledCall(ctx, callID); err != nil {
			log.Warn().
				Err(err).
				Str("callId", callID).
				Msg("call artifact cleanup failed")
		}
	}
	return int64(len(ids)), nil
}

// cleanupCancelledCall removes the video session and Redis state left
// behind by a call cancelled at the database level.
func (c *CallCoordinator) cleanupCancelledCall(ctx context.Context, callID string) error {
	call, err := c.calls.FindByID(ctx, callID)
	if err != nil {
		return err
	}

	video, err := c.videos.FindOpenByCallSessionID(ctx, callID)
	if err != nil {
		return err
	}
	if err := c.videos.CancelByCallSessionID(ctx, callID); err != nil {
		return err
	}

	if video != nil && call != nil {
		c.clearSessionState(ctx, video.SessionID, call.User1ID, call.User2ID)
	}
	return nil
}

func (c *CallCoordinator) clearSessionState(ctx context.Context, sessionID string, participants ...int64) {
	c.mailbox.Clear(ctx, sessionID, participants...)
	if err := c.rdb.Del(ctx, redis.JoinedKey(sessionID)).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Msg("join tracking cleanup failed, key will expire via TTL")
	}
}

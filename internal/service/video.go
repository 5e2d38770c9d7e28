package service

import (
	"context"
	"strconv"
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

// VideoService runs the call lifecycle: both participants join, the
// fixed-length timer starts once, and the session completes exactly once
// whether the timer fires, a participant hangs up, or the sweeper
// reaps it.
type VideoService struct {
	db           TxRunner
	rdb          *redis.Client
	calls        repository.CallSessionRepository
	videos       repository.VideoSessionRepository
	matches      repository.MatchRepository
	mailbox      *Mailbox
	callDuration time.Duration

	// afterFunc is swapped out in tests; production uses time.AfterFunc.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewVideoService(
	db TxRunner,
	rdb *redis.Client,
	calls repository.CallSessionRepository,
	videos repository.VideoSessionRepository,
	matches repository.MatchRepository,
	mailbox *Mailbox,
	callDuration time.Duration,
) *VideoService {
	return &VideoService{
		db:           db,
		rdb:          rdb,
		calls:        calls,
		videos:       videos,
		matches:      matches,
		mailbox:      mailbox,
		callDuration: callDuration,
		afterFunc:    time.AfterFunc,
	}
}

// resolvePairing loads the parent a video session is bound to.
func (s *VideoService) resolvePairing(ctx context.Context, video *model.VideoSession) (model.Pairing, error) {
	return resolvePairing(ctx, video, s.calls, s.matches)
}

func resolvePairing(
	ctx context.Context,
	video *model.VideoSession,
	calls repository.CallSessionRepository,
	matches repository.MatchRepository,
) (model.Pairing, error) {
	switch {
	case video.CallSessionID != nil:
		call, err := calls.FindByID(ctx, *video.CallSessionID)
		if err != nil {
			return model.Pairing{}, apperrors.Database(err)
		}
		if call == nil {
			return model.Pairing{}, apperrors.Internal("Video session references a missing call session")
		}
		return model.PairingFromCall(call), nil

	case video.MatchID != nil:
		match, err := matches.FindByID(ctx, *video.MatchID)
		if err != nil {
			return model.Pairing{}, apperrors.Database(err)
		}
		if match == nil {
			return model.Pairing{}, apperrors.Internal("Video session references a missing match")
		}
		return model.PairingFromMatch(match), nil
	}
	return model.Pairing{}, apperrors.Internal("Video session has no pairing")
}

// JoinResult tells the client whether the call is running yet.
type JoinResult struct {
	Session           *model.VideoSession `json:"session"`
	ConnectedUsers    int                 `json:"connectedUsers"`
	WaitingForPartner bool                `json:"waitingForPartner"`
	TimerStarted      bool                `json:"timerStarted"`
}

// Join marks the caller as present. The second participant's join flips
// the session to active, stamps started_at once, and arms the
// auto-end timer. Joining is idempotent; rejoining an active call is a
// no-op.
func (s *VideoService) Join(ctx context.Context, userID int64, sessionID string) (*JoinResult, error) {
	video, pairing, err := s.authorized(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if video.Status == model.CallStatusCompleted || video.Status == model.CallStatusCancelled {
		return nil, apperrors.Gone("Call already ended")
	}

	joinedKey := redis.JoinedKey(sessionID)
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, joinedKey, userID)
	pipe.Expire(ctx, joinedKey, config.SignalMailboxTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperrors.Internal("Join tracking unavailable").WithCause(err)
	}

	joined, err := s.joinedUsers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user1, user2 := pairing.Participants()
	bothPresent := joined[user1] && joined[user2]

	result := &JoinResult{
		Session:           video,
		ConnectedUsers:    len(joined),
		WaitingForPartner: !bothPresent,
	}

	if video.Status != model.CallStatusWaiting || !bothPresent {
		return result, nil
	}

	started, err := s.start(ctx, video, pairing)
	if err != nil {
		return nil, err
	}
	if started != nil {
		result.Session = started
		result.TimerStarted = true
	} else {
		// The partner's concurrent join won the transition.
		current, err := s.videos.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if current != nil {
			result.Session = current
		}
	}
	result.WaitingForPartner = false
	return result, nil
}

// start flips waiting -> active and arms the timer. The repository's
// guarded UPDATE is what makes concurrent joins start the timer exactly
// once: only the caller that wins the transition gets a row back.
func (s *VideoService) start(ctx context.Context, video *model.VideoSession, pairing model.Pairing) (*model.VideoSession, error) {
	var started *model.VideoSession
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		started, txErr = s.videos.WithTx(tx).Start(ctx, video.SessionID)
		if txErr != nil {
			return txErr
		}
		if started == nil {
			return nil
		}
		if pairing.Kind == model.PairingKindCall {
			return s.calls.WithTx(tx).MarkStarted(ctx, pairing.Call.ID)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if started == nil {
		return nil, nil
	}

	duration := time.Duration(started.Duration) * time.Second
	s.afterFunc(duration, func() {
		s.autoEnd(started.SessionID)
	})

	log.Info().
		Str("sessionId", started.SessionID).
		Dur("duration", duration).
		Msg("video call started")

	return started, nil
}

// autoEnd is the timer callback. It runs detached from any request, so
// it brings its own context.
func (s *VideoService) autoEnd(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.complete(ctx, sessionID, "timer"); err != nil {
		log.Error().
			Err(err).
			Str("sessionId", sessionID).
			Msg("timer completion failed, sweeper will reap the session")
	}
}

// EndCall lets a participant hang up before the timer fires. The call
// still counts as completed.
func (s *VideoService) EndCall(ctx context.Context, userID int64, sessionID string) (*model.VideoSession, error) {
	video, _, err := s.authorized(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch video.Status {
	case model.CallStatusWaiting:
		return nil, apperrors.PreconditionFailed("Call has not started yet")
	case model.CallStatusCompleted, model.CallStatusCancelled:
		return video, nil
	}

	if err := s.complete(ctx, sessionID, "manual"); err != nil {
		return nil, err
	}
	return s.videos.FindBySessionID(ctx, sessionID)
}

// complete finalizes an active session exactly once. The guarded UPDATE
// returns nothing when another path (timer, hangup, sweeper) got there
// first, which makes completion safe to call from all of them.
func (s *VideoService) complete(ctx context.Context, sessionID string, reason string) error {
	var (
		video   *model.VideoSession
		pairing model.Pairing
	)
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		videos := s.videos.WithTx(tx)

		var txErr error
		video, txErr = videos.Complete(ctx, sessionID)
		if txErr != nil {
			return txErr
		}
		if video == nil {
			return nil
		}

		pairing, txErr = resolvePairing(ctx, video, s.calls.WithTx(tx), s.matches.WithTx(tx))
		if txErr != nil {
			return txErr
		}

		switch pairing.Kind {
		case model.PairingKindCall:
			return s.calls.WithTx(tx).MarkEnded(ctx, pairing.Call.ID, model.CallStatusCompleted, true)
		case model.PairingKindMatch:
			if txErr := s.matches.WithTx(tx).MarkCallCompleted(ctx, pairing.Match.ID); txErr != nil {
				return txErr
			}
			_, txErr = videos.PruneCompletedForMatch(ctx, pairing.Match.ID, config.VideoSessionsKeptPerMatch)
			return txErr
		}
		return nil
	})
	if err != nil {
		return apperrors.Database(err)
	}
	if video == nil {
		return nil
	}

	user1, user2 := pairing.Participants()
	s.mailbox.Clear(ctx, sessionID, user1, user2)
	if err := s.rdb.Del(ctx, redis.JoinedKey(sessionID)).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Msg("join tracking cleanup failed, key will expire via TTL")
	}

	metrics.CallsCompletedTotal.WithLabelValues(reason).Inc()
	log.Info().
		Str("sessionId", sessionID).
		Str("reason", reason).
		Msg("video call completed")

	return nil
}

// Get returns the session to a participant.
func (s *VideoService) Get(ctx context.Context, userID int64, sessionID string) (*model.VideoSession, error) {
	video, _, err := s.authorized(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return video, nil
}

// StartCallForMatch opens a video session between two durably matched
// users: the first call on a fresh match, or a repeat call once they
// are mutual.
func (s *VideoService) StartCallForMatch(ctx context.Context, userID int64, matchID int64) (*model.VideoSession, error) {
	match, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if !match.IsParticipant(userID) {
		return nil, apperrors.Forbidden("Not a participant in this match")
	}
	if match.Status == model.MatchStatusUnmatched || match.Status == model.MatchStatusRejected {
		return nil, apperrors.PreconditionFailed("Match is closed")
	}

	open, err := s.videos.FindOpenByMatchID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if open != nil {
		return open, nil
	}

	mutual := match.Status == model.MatchStatusMatched
	if !mutual && match.CallCompleted {
		return nil, apperrors.PreconditionFailed("Call already completed, submit your decision")
	}

	sessionID := uuid.NewString()
	if !mutual && match.VideoSessionID != nil {
		// First call keeps the session ID handed out at match creation.
		sessionID = *match.VideoSessionID
	}

	var video *model.VideoSession
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var txErr error
		video, txErr = s.videos.WithTx(tx).Create(ctx, model.CreateVideoSessionParams{
			SessionID: sessionID,
			MatchID:   &matchID,
			Duration:  int(s.callDuration.Seconds()),
		})
		if txErr != nil {
			return txErr
		}
		return s.matches.WithTx(tx).SetVideoSessionID(ctx, matchID, sessionID)
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Int64("matchId", matchID).
		Str("sessionId", sessionID).
		Bool("repeat", mutual).
		Msg("video session opened for match")

	return video, nil
}

// ActiveSessions lists the caller's open video sessions across both
// pairing paths.
func (s *VideoService) ActiveSessions(ctx context.Context, userID int64) ([]model.VideoSession, error) {
	var sessions []model.VideoSession

	matches, err := s.matches.FindOpenByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	for _, match := range matches {
		video, err := s.videos.FindOpenByMatchID(ctx, match.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if video != nil {
			sessions = append(sessions, *video)
		}
	}

	call, err := s.calls.FindInboundForUser(ctx, userID, time.Now().Add(-config.CallStaleAfter))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if call != nil {
		video, err := s.videos.FindOpenByCallSessionID(ctx, call.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if video != nil {
			sessions = append(sessions, *video)
		}
	}

	return sessions, nil
}

// PendingCalls lists open sessions the caller has not joined yet.
func (s *VideoService) PendingCalls(ctx context.Context, userID int64) ([]model.VideoSession, error) {
	open, err := s.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending := open[:0]
	for _, video := range open {
		joined, err := s.joinedUsers(ctx, video.SessionID)
		if err != nil {
			return nil, err
		}
		if !joined[userID] {
			pending = append(pending, video)
		}
	}
	return pending, nil
}

// CallHistory lists the retained sessions between two matched users.
func (s *VideoService) CallHistory(ctx context.Context, userID int64, matchID int64) ([]model.VideoSession, error) {
	match, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}
	if !match.IsParticipant(userID) {
		return nil, apperrors.Forbidden("Not a participant in this match")
	}
	return s.videos.FindByMatchID(ctx, matchID)
}

func (s *VideoService) authorized(ctx context.Context, userID int64, sessionID string) (*model.VideoSession, model.Pairing, error) {
	video, err := s.videos.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, model.Pairing{}, apperrors.Database(err)
	}
	if video == nil {
		return nil, model.Pairing{}, apperrors.NotFound("Video session")
	}

	pairing, err := s.resolvePairing(ctx, video)
	if err != nil {
		return nil, model.Pairing{}, err
	}
	if !pairing.IsParticipant(userID) {
		return nil, model.Pairing{}, apperrors.Forbidden("Not a participant in this call")
	}
	return video, pairing, nil
}

func (s *VideoService) joinedUsers(ctx context.Context, sessionID string) (map[int64]bool, error) {
	members, err := s.rdb.SMembers(ctx, redis.JoinedKey(sessionID)).Result()
	if err != nil {
		return nil, apperrors.Internal("Join tracking unavailable").WithCause(err)
	}

	joined := make(map[int64]bool, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		joined[id] = true
	}
	return joined, nil
}

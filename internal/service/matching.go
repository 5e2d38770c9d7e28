package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/config"
	"github.com/blinkdate/match-server-go/internal/metrics"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/repository"
)

const noCandidatesMessage = "No active users found right now. Try again in a few minutes!"

// MatchingService runs the continuous matching loop: one active session
// per user, polled repeatedly for the next partner until the user ends
// the episode.
type MatchingService struct {
	db          TxRunner
	users       repository.UserRepository
	sessions    repository.MatchingSessionRepository
	calls       repository.CallSessionRepository
	activity    *ActivityService
	coordinator *CallCoordinator
}

func NewMatchingService(
	db TxRunner,
	users repository.UserRepository,
	sessions repository.MatchingSessionRepository,
	calls repository.CallSessionRepository,
	activity *ActivityService,
	coordinator *CallCoordinator,
) *MatchingService {
	return &MatchingService{
		db:          db,
		users:       users,
		sessions:    sessions,
		calls:       calls,
		activity:    activity,
		coordinator: coordinator,
	}
}

type StartMatchingParams struct {
	MinAge             int      `json:"minAge"`
	MaxAge             int      `json:"maxAge"`
	PreferredInterests []string `json:"preferredInterests"`
}

// Start opens a new matching session for the user. Any previous active
// session is force-completed first so the one-active-session-per-user
// invariant holds, and its open calls are cancelled.
func (s *MatchingService) Start(ctx context.Context, userID int64, params StartMatchingParams) (*model.MatchingSession, error) {
	profile, err := s.users.FindProfile(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if profile == nil {
		return nil, apperrors.PreconditionFailed("Create a profile before matching")
	}

	if params.MinAge == 0 {
		params.MinAge = profile.MinAge
	}
	if params.MaxAge == 0 {
		params.MaxAge = profile.MaxAge
	}
	if params.MinAge < 18 {
		return nil, apperrors.InvalidInput("minAge", "must be at least 18")
	}
	if params.MaxAge < params.MinAge {
		return nil, apperrors.InvalidInput("maxAge", "must not be below minAge")
	}

	if err := s.coordinator.CancelOpenCallsForUser(ctx, userID); err != nil {
		return nil, err
	}

	var session *model.MatchingSession
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessions.WithTx(tx)

		replaced, txErr := sessions.CompleteActiveForUser(ctx, userID)
		if txErr != nil {
			return txErr
		}
		if replaced > 0 {
			log.Info().
				Int64("userId", userID).
				Int64("replaced", replaced).
				Msg("previous matching session force-completed")
		}

		session, txErr = sessions.Create(ctx, model.CreateMatchingSessionParams{
			SessionToken:       uuid.NewString(),
			UserID:             userID,
			MinAge:             params.MinAge,
			MaxAge:             params.MaxAge,
			PreferredInterests: params.PreferredInterests,
		})
		return txErr
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Int64("userId", userID).
		Str("sessionToken", session.SessionToken).
		Msg("matching session started")

	return session, nil
}

// PartnerInfo is the slice of a partner's profile shown before a call.
type PartnerInfo struct {
	UserID    int64    `json:"userId"`
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Bio       string   `json:"bio"`
	Interests []string `json:"interests"`
}

// NextMatchResult is the poll response: either a pairing with call
// coordinates, or "keep polling" with pool stats.
type NextMatchResult struct {
	Found              bool               `json:"matchFound"`
	CallID             string             `json:"callId,omitempty"`
	VideoSessionID     string             `json:"videoSessionId,omitempty"`
	Partner            *PartnerInfo       `json:"partner,omitempty"`
	CompatibilityScore float64            `json:"compatibilityScore,omitempty"`
	Stats              model.SessionStats `json:"stats"`
	Message            string             `json:"message,omitempty"`
}

// scoredCandidate pairs a candidate with its bonus-adjusted score for
// ranking.
type scoredCandidate struct {
	user  model.User
	score float64
}

// PollNext advances the continuous loop one step. Order matters: touch
// activity first, then honor an inbound pairing someone else already
// created, then search the pool. Polling is idempotent; seeing the same
// pairing twice does not double-count it.
func (s *MatchingService) PollNext(ctx context.Context, userID int64, token string) (*NextMatchResult, error) {
	session, err := s.ownedActiveSession(ctx, userID, token)
	if err != nil {
		return nil, err
	}

	if err := s.activity.Touch(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		return nil, apperrors.Database(err)
	}

	now := time.Now()

	// Someone else's poll may already have paired us.
	inbound, err := s.calls.FindInboundForUser(ctx, userID, now.Add(-config.CallReuseWindow))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if inbound != nil {
		metrics.PollsTotal.WithLabelValues("inbound").Inc()
		return s.acceptPairing(ctx, session, inbound, inbound.OtherParticipant(userID), false)
	}

	ranked, err := s.rankCandidates(ctx, session, now)
	if err != nil {
		return nil, err
	}

	for _, candidate := range ranked {
		ok, err := s.revalidateCandidate(ctx, session, candidate.user.ID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		call, _, _, err := s.coordinator.PairUsers(ctx, userID, candidate.user.ID)
		if err != nil {
			return nil, err
		}

		metrics.PollsTotal.WithLabelValues("paired").Inc()
		return s.acceptPairing(ctx, session, call, candidate.user.ID, true)
	}

	metrics.PollsTotal.WithLabelValues("empty").Inc()
	return &NextMatchResult{
		Found:   false,
		Stats:   s.statsFor(session, now),
		Message: noCandidatesMessage,
	}, nil
}

// rankCandidates scores the eligible pool and returns everyone over the
// floor, best first. The sort is stable so equal scores keep the pool's
// recency order.
func (s *MatchingService) rankCandidates(ctx context.Context, session *model.MatchingSession, now time.Time) ([]scoredCandidate, error) {
	myProfile, err := s.users.FindProfile(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if myProfile == nil {
		return nil, apperrors.PreconditionFailed("Create a profile before matching")
	}
	myInterests, err := s.users.FindInterests(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	pool, err := s.users.FindCandidates(ctx, repository.FindCandidatesParams{
		ExcludedIDs:       session.ExcludedUserIDs,
		MinAge:            session.MinAge,
		MaxAge:            session.MaxAge,
		SessionFreshSince: now.Add(-config.CandidateFreshness),
		Limit:             config.CandidateScanLimit,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	ranked := make([]scoredCandidate, 0, len(pool))
	for _, user := range pool {
		profile, err := s.users.FindProfile(ctx, user.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if profile == nil {
			continue
		}
		interests, err := s.users.FindInterests(ctx, user.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}

		score := CompatibilityScore(myProfile, profile, myInterests, interests)
		score += config.PreferredInterestBonus * float64(SharedInterestCount(session.PreferredInterests, interests))
		score += activityBonus(now.Sub(user.LastActive))

		if score <= config.MinCompatibility {
			continue
		}
		ranked = append(ranked, scoredCandidate{user: user, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked, nil
}

func activityBonus(idle time.Duration) float64 {
	switch {
	case idle < 5*time.Minute:
		return config.VeryActiveBonus
	case idle < 10*time.Minute:
		return config.RecentActiveBonus
	default:
		return 0
	}
}

// revalidateCandidate re-checks the winner just before pairing: the
// candidate query and the pairing are not one atomic step, so the
// candidate may have gone offline, let their session go stale, or
// excluded us in between.
func (s *MatchingService) revalidateCandidate(ctx context.Context, session *model.MatchingSession, candidateID int64, now time.Time) (bool, error) {
	recentlyActive, err := s.activity.IsRecentlyActive(ctx, candidateID, config.CandidateFreshness)
	if err != nil {
		return false, err
	}
	if !recentlyActive {
		return false, nil
	}

	candidateSession, err := s.sessions.FindActiveByUserID(ctx, candidateID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if candidateSession == nil {
		return false, nil
	}
	if candidateSession.LastActive.Before(now.Add(-config.CandidateFreshness)) {
		return false, nil
	}
	if candidateSession.Excludes(session.UserID) {
		return false, nil
	}
	return true, nil
}

// acceptPairing records the pairing on the caller's session and builds
// the poll response. A repeat poll that sees the same call again skips
// the bookkeeping so counters stay accurate.
func (s *MatchingService) acceptPairing(ctx context.Context, session *model.MatchingSession, call *model.CallSession, partnerID int64, mirror bool) (*NextMatchResult, error) {
	video, err := s.coordinator.openVideoFor(ctx, call)
	if err != nil {
		return nil, err
	}

	alreadyCurrent := session.CurrentCallID != nil && *session.CurrentCallID == call.ID
	if !alreadyCurrent {
		err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			sessions := s.sessions.WithTx(tx)
			if txErr := sessions.SetCurrentCall(ctx, session.ID, &call.ID); txErr != nil {
				return txErr
			}
			if txErr := sessions.IncrementMatchesMade(ctx, session.ID); txErr != nil {
				return txErr
			}
			return sessions.AddExclusion(ctx, session.ID, partnerID)
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}
		session.CurrentCallID = &call.ID
		session.MatchesMade++

		if mirror {
			mirrored, err := s.sessions.AddExclusionForUser(ctx, partnerID, session.UserID)
			if err != nil {
				return nil, apperrors.Database(err)
			}
			if mirrored == 0 {
				log.Debug().
					Int64("userId", session.UserID).
					Int64("partnerId", partnerID).
					Msg("exclusion not mirrored, partner has no active session")
			}
		}
	}

	partner, err := s.partnerInfo(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	score, err := s.coordinator.scorePair(ctx, session.UserID, partnerID)
	if err != nil {
		return nil, err
	}

	return &NextMatchResult{
		Found:              true,
		CallID:             call.ID,
		VideoSessionID:     video.SessionID,
		Partner:            partner,
		CompatibilityScore: score,
		Stats:              s.statsFor(session, time.Now()),
	}, nil
}

func (s *MatchingService) partnerInfo(ctx context.Context, userID int64) (*PartnerInfo, error) {
	profile, err := s.users.FindProfile(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if profile == nil {
		return &PartnerInfo{UserID: userID}, nil
	}

	interests, err := s.users.FindInterests(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	names := make([]string, len(interests))
	for i, interest := range interests {
		names[i] = interest.Name
	}

	return &PartnerInfo{
		UserID:    userID,
		Name:      profile.Name,
		Age:       profile.Age,
		Bio:       profile.Bio,
		Interests: names,
	}, nil
}

// RecordDecision applies the user's verdict on the current pairing to
// the episode: continue accepts it (mutual continue promotes the
// pairing to a durable match), next moves on, skip moves on and never
// offers that partner again this episode.
func (s *MatchingService) RecordDecision(ctx context.Context, userID int64, token, callID string, decision model.EpisodeDecision) (*model.SessionStats, error) {
	session, err := s.ownedActiveSession(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, session.ID); err != nil {
		return nil, apperrors.Database(err)
	}

	call, err := s.calls.FindByID(ctx, callID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if call == nil {
		return nil, apperrors.NotFound("Call session")
	}
	if !call.IsParticipant(userID) {
		return nil, apperrors.Forbidden("Not a participant in this call")
	}
	partnerID := call.OtherParticipant(userID)

	switch decision {
	case model.EpisodeContinue:
		// Continue is this side's acceptance of the pairing. The match
		// and the successful-match credit only materialize once the
		// partner accepts too.
		previous := call.DecisionOf(userID)
		result, err := s.coordinator.AcceptPairing(ctx, userID, callID)
		if err != nil {
			return nil, err
		}
		alreadyAccepted := previous != nil && *previous == string(model.DecisionLike)
		if result.MutualMatch && !alreadyAccepted {
			session.SuccessfulMatches++
		}

	case model.EpisodeNext:
		if err := s.clearCurrentCall(ctx, session, callID); err != nil {
			return nil, err
		}

	case model.EpisodeSkip:
		if err := s.sessions.AddExclusion(ctx, session.ID, partnerID); err != nil {
			return nil, apperrors.Database(err)
		}
		mirrored, err := s.sessions.AddExclusionForUser(ctx, partnerID, userID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if mirrored == 0 {
			log.Warn().
				Int64("userId", userID).
				Int64("partnerId", partnerID).
				Msg("exclusion not mirrored, partner has no active session")
		}
		if err := s.clearCurrentCall(ctx, session, callID); err != nil {
			return nil, err
		}

	default:
		return nil, apperrors.InvalidInput("decision", "must be continue, next or skip")
	}

	stats := s.statsFor(session, time.Now())
	return &stats, nil
}

// clearCurrentCall detaches the pairing from the session and cancels it
// if the call never finished.
func (s *MatchingService) clearCurrentCall(ctx context.Context, session *model.MatchingSession, callID string) error {
	if session.CurrentCallID != nil && *session.CurrentCallID == callID {
		if err := s.sessions.SetCurrentCall(ctx, session.ID, nil); err != nil {
			return apperrors.Database(err)
		}
		session.CurrentCallID = nil
	}
	return s.coordinator.CancelCall(ctx, callID)
}

// End completes the session and returns its summary. Ending an already
// completed session returns the same summary instead of failing.
func (s *MatchingService) End(ctx context.Context, userID int64, token string) (*model.SessionStats, error) {
	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || session.UserID != userID {
		return nil, apperrors.NotFound("Matching session")
	}

	if session.Status == model.MatchingStatusActive {
		if err := s.sessions.Complete(ctx, session.ID); err != nil {
			return nil, apperrors.Database(err)
		}
		if err := s.coordinator.CancelOpenCallsForUser(ctx, userID); err != nil {
			return nil, err
		}
		now := time.Now()
		session.EndedAt = &now

		log.Info().
			Int64("userId", userID).
			Int("matchesMade", session.MatchesMade).
			Int("successfulMatches", session.SuccessfulMatches).
			Msg("matching session ended")
	}

	stats := s.statsFor(session, time.Now())
	return &stats, nil
}

// GetSession returns the caller's session for introspection.
func (s *MatchingService) GetSession(ctx context.Context, userID int64, token string) (*model.MatchingSession, error) {
	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || session.UserID != userID {
		return nil, apperrors.NotFound("Matching session")
	}
	return session, nil
}

// ownedActiveSession resolves a token to the caller's active session.
// Unknown tokens and other users' tokens are indistinguishable.
func (s *MatchingService) ownedActiveSession(ctx context.Context, userID int64, token string) (*model.MatchingSession, error) {
	session, err := s.sessions.FindActiveByToken(ctx, token)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || session.UserID != userID {
		return nil, apperrors.NotFound("Matching session")
	}
	return session, nil
}

func (s *MatchingService) statsFor(session *model.MatchingSession, now time.Time) model.SessionStats {
	end := now
	if session.EndedAt != nil {
		end = *session.EndedAt
	}
	minutes := int(end.Sub(session.StartedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return model.SessionStats{
		MatchesMade:       session.MatchesMade,
		SuccessfulMatches: session.SuccessfulMatches,
		DurationMinutes:   minutes,
	}
}

// PoolStats is a coarse view of how many users are around to match with.
type PoolStats struct {
	ActiveLast10Min int `json:"activeLast10Min"`
	ActiveLastHour  int `json:"activeLastHour"`
	ActiveLastDay   int `json:"activeLastDay"`
}

func (s *MatchingService) PoolStats(ctx context.Context) (*PoolStats, error) {
	now := time.Now()

	last10, err := s.users.CountActiveSince(ctx, now.Add(-10*time.Minute))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	lastHour, err := s.users.CountActiveSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	lastDay, err := s.users.CountActiveSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, apperrors.Database(err)
	}

	return &PoolStats{
		ActiveLast10Min: last10,
		ActiveLastHour:  lastHour,
		ActiveLastDay:   lastDay,
	}, nil
}

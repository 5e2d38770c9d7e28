package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/redis"
	"github.com/blinkdate/match-server-go/internal/repository"
)

// Batch discovery tuning. The threshold is lower than the continuous
// flow's because the activity bonuses below are meant to surface online
// users even when raw profile fit is middling.
const (
	discoveryLimit     = 10
	discoveryScanMult  = 5
	discoveryThreshold = 0.25
	discoveryPoolAge   = 30 * 24 * time.Hour
)

// MatchService is the swipe-style flow: discover a batch of candidates,
// create pending matches, call, then decide. It predates the continuous
// loop and stays available alongside it.
type MatchService struct {
	db      TxRunner
	rdb     *redis.Client
	users   repository.UserRepository
	matches repository.MatchRepository
	videos  repository.VideoSessionRepository
	mailbox *Mailbox
}

func NewMatchService(
	db TxRunner,
	rdb *redis.Client,
	users repository.UserRepository,
	matches repository.MatchRepository,
	videos repository.VideoSessionRepository,
	mailbox *Mailbox,
) *MatchService {
	return &MatchService{
		db:      db,
		rdb:     rdb,
		users:   users,
		matches: matches,
		videos:  videos,
		mailbox: mailbox,
	}
}

// MatchView is a match joined with the other user's public profile.
type MatchView struct {
	ID                 int64             `json:"id"`
	UserID             int64             `json:"userId"`
	MatchedUserID      int64             `json:"matchedUserId"`
	Status             model.MatchStatus `json:"status"`
	CompatibilityScore float64           `json:"compatibilityScore"`
	VideoSessionID     *string           `json:"videoSessionId,omitempty"`
	CallCompleted      bool              `json:"callCompleted"`
	Partner            PartnerInfo       `json:"partner"`
}

// FindMatches discovers a fresh batch of candidates and creates pending
// matches with them. Candidates already matched with the user in either
// direction are never offered again.
func (s *MatchService) FindMatches(ctx context.Context, userID int64) ([]MatchView, error) {
	profile, err := s.users.FindProfile(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if profile == nil {
		return nil, apperrors.PreconditionFailed("Complete your profile first")
	}
	myInterests, err := s.users.FindInterests(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	partnerIDs, err := s.matches.ExistingPartnerIDs(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	excluded := append(partnerIDs, userID)

	now := time.Now()
	pool, err := s.users.FindRecentActive(ctx, repository.FindRecentActiveParams{
		ExcludedIDs: excluded,
		MinAge:      profile.MinAge,
		MaxAge:      profile.MaxAge,
		ActiveSince: now.Add(-discoveryPoolAge),
		Limit:       discoveryLimit * discoveryScanMult,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	type ranked struct {
		user  model.User
		base  float64
		score float64
	}
	var candidates []ranked
	for _, user := range pool {
		candidateProfile, err := s.users.FindProfile(ctx, user.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if candidateProfile == nil {
			continue
		}
		candidateInterests, err := s.users.FindInterests(ctx, user.ID)
		if err != nil {
			return nil, apperrors.Database(err)
		}

		base := CompatibilityScore(profile, candidateProfile, myInterests, candidateInterests)
		score := base + discoveryActivityBonus(now.Sub(user.LastActive))
		if score <= discoveryThreshold {
			continue
		}
		candidates = append(candidates, ranked{user: user, base: base, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > discoveryLimit {
		candidates = candidates[:discoveryLimit]
	}

	views := make([]MatchView, 0, len(candidates))
	for _, candidate := range candidates {
		sessionID := uuid.NewString()
		// The stored score is the raw profile fit; activity bonuses only
		// affect ranking.
		match, err := s.matches.Create(ctx, model.CreateMatchParams{
			UserID:             userID,
			MatchedUserID:      candidate.user.ID,
			CompatibilityScore: candidate.base,
			Status:             model.MatchStatusPending,
			VideoSessionID:     &sessionID,
		})
		if err != nil {
			return nil, apperrors.Database(err)
		}

		view, err := s.viewFor(ctx, match, userID)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}

	log.Info().
		Int64("userId", userID).
		Int("created", len(views)).
		Msg("batch discovery created matches")

	return views, nil
}

func discoveryActivityBonus(idle time.Duration) float64 {
	switch {
	case idle <= 10*time.Minute:
		return 0.2
	case idle <= time.Hour:
		return 0.1
	case idle <= 24*time.Hour:
		return 0.05
	default:
		return 0
	}
}

// ListMutual returns only the matches where both users said like.
func (s *MatchService) ListMutual(ctx context.Context, userID int64) ([]MatchView, error) {
	matches, err := s.matches.FindMutualByUserID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	views := make([]MatchView, 0, len(matches))
	for i := range matches {
		view, err := s.viewFor(ctx, &matches[i], userID)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

type SwipeResult struct {
	MatchStatus   model.MatchStatus `json:"matchStatus"`
	IsMutualMatch bool              `json:"isMutualMatch"`
}

// Swipe records a like/pass after the first call. A one-sided decision
// parks the match in liked or passed; once both users have decided,
// mutual like resolves to matched and anything else to rejected.
func (s *MatchService) Swipe(ctx context.Context, userID int64, matchID int64, decision model.CallDecision) (*SwipeResult, error) {
	if decision != model.DecisionLike && decision != model.DecisionPass {
		return nil, apperrors.InvalidInput("decision", "must be like or pass")
	}

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
	if !match.CallCompleted {
		return nil, apperrors.PreconditionFailed("Complete the video call first")
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		matches := s.matches.WithTx(tx)

		var txErr error
		match, txErr = matches.SetDecision(ctx, matchID, userID, decision)
		if txErr != nil {
			return txErr
		}
		if match == nil {
			return nil
		}

		if match.UserDecision == nil || match.MatchedUserDecision == nil {
			status := model.MatchStatusPassed
			if decision == model.DecisionLike {
				status = model.MatchStatusLiked
			}
			match.Status = status
			return matches.UpdateStatus(ctx, matchID, status)
		}

		status := model.MatchStatusRejected
		if *match.UserDecision == string(model.DecisionLike) &&
			*match.MatchedUserDecision == string(model.DecisionLike) {
			status = model.MatchStatusMatched
		}
		match.Status = status
		return matches.UpdateStatus(ctx, matchID, status)
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if match == nil {
		return nil, apperrors.NotFound("Match")
	}

	return &SwipeResult{
		MatchStatus:   match.Status,
		IsMutualMatch: match.Status == model.MatchStatusMatched,
	}, nil
}

// Unmatch closes a match for good: decisions are cleared and any open
// video session between the pair is cancelled.
func (s *MatchService) Unmatch(ctx context.Context, userID int64, matchID int64) error {
	match, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return apperrors.Database(err)
	}
	if match == nil {
		return apperrors.NotFound("Match")
	}
	if !match.IsParticipant(userID) {
		return apperrors.Forbidden("Not a participant in this match")
	}

	video, err := s.videos.FindOpenByMatchID(ctx, matchID)
	if err != nil {
		return apperrors.Database(err)
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if txErr := s.matches.WithTx(tx).Unmatch(ctx, matchID); txErr != nil {
			return txErr
		}
		if video != nil {
			return s.videos.WithTx(tx).Cancel(ctx, video.SessionID)
		}
		return nil
	})
	if err != nil {
		return apperrors.Database(err)
	}

	if video != nil {
		s.mailbox.Clear(ctx, video.SessionID, match.UserID, match.MatchedUserID)
		if err := s.rdb.Del(ctx, redis.JoinedKey(video.SessionID)).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("sessionId", video.SessionID).
				Msg("join tracking cleanup failed, key will expire via TTL")
		}
	}

	log.Info().
		Int64("matchId", matchID).
		Int64("userId", userID).
		Msg("match closed by unmatch")

	return nil
}

// Get returns one match to a participant.
func (s *MatchService) Get(ctx context.Context, userID int64, matchID int64) (*MatchView, error) {
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
	return s.viewFor(ctx, match, userID)
}

func (s *MatchService) viewFor(ctx context.Context, match *model.Match, viewerID int64) (*MatchView, error) {
	partnerID := match.OtherParticipant(viewerID)

	profile, err := s.users.FindProfile(ctx, partnerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	interests, err := s.users.FindInterests(ctx, partnerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	partner := PartnerInfo{UserID: partnerID}
	if profile != nil {
		partner.Name = profile.Name
		partner.Age = profile.Age
		partner.Bio = profile.Bio
	}
	partner.Interests = make([]string, len(interests))
	for i, interest := range interests {
		partner.Interests[i] = interest.Name
	}

	return &MatchView{
		ID:                 match.ID,
		UserID:             match.UserID,
		MatchedUserID:      match.MatchedUserID,
		Status:             match.Status,
		CompatibilityScore: match.CompatibilityScore,
		VideoSessionID:     match.VideoSessionID,
		CallCompleted:      match.CallCompleted,
		Partner:            partner,
	}, nil
}

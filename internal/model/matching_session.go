package model

import (
	"time"

	"github.com/lib/pq"
)

// MatchingSession is one "looking for a partner now" episode. At most one
// active session exists per user; starting a new one completes the old.
type MatchingSession struct {
	ID                 int64                 `db:"id" json:"-"`
	SessionToken       string                `db:"session_token" json:"sessionToken"`
	UserID             int64                 `db:"user_id" json:"userId"`
	Status             MatchingSessionStatus `db:"status" json:"status"`
	MinAge             int                   `db:"min_age" json:"minAge"`
	MaxAge             int                   `db:"max_age" json:"maxAge"`
	PreferredInterests pq.StringArray        `db:"preferred_interests" json:"preferredInterests"`

	// Users this episode will not offer again. Seeded with the owner's
	// own ID; grown by pairing and by skip decisions.
	ExcludedUserIDs pq.Int64Array `db:"excluded_user_ids" json:"-"`

	CurrentCallID     *string    `db:"current_call_id" json:"currentCallId,omitempty"`
	MatchesMade       int        `db:"matches_made" json:"matchesMade"`
	SuccessfulMatches int        `db:"successful_matches" json:"successfulMatches"`
	StartedAt         time.Time  `db:"started_at" json:"startedAt"`
	EndedAt           *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	LastActive        time.Time  `db:"last_active" json:"lastActive"`
}

func (s *MatchingSession) Excludes(userID int64) bool {
	for _, id := range s.ExcludedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type CreateMatchingSessionParams struct {
	SessionToken       string
	UserID             int64
	MinAge             int
	MaxAge             int
	PreferredInterests []string
}

// SessionStats is the summary returned on end and with every poll.
type SessionStats struct {
	MatchesMade       int `json:"matchesMade"`
	SuccessfulMatches int `json:"successfulMatches"`
	DurationMinutes   int `json:"durationMinutes"`
}

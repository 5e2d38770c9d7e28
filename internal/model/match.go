package model

import "time"

// Match is the durable outcome of pairing. Once status is "matched" it
// stays visible to both users regardless of later pool activity.
type Match struct {
	ID                  int64       `db:"id" json:"id"`
	UserID              int64       `db:"user_id" json:"userId"`
	MatchedUserID       int64       `db:"matched_user_id" json:"matchedUserId"`
	Status              MatchStatus `db:"status" json:"status"`
	CompatibilityScore  float64     `db:"compatibility_score" json:"compatibilityScore"`
	VideoSessionID      *string     `db:"video_session_id" json:"videoSessionId,omitempty"`
	CallCompleted       bool        `db:"call_completed" json:"callCompleted"`
	UserDecision        *string     `db:"user_decision" json:"-"`
	MatchedUserDecision *string     `db:"matched_user_decision" json:"-"`
	CreatedAt           time.Time   `db:"created_at" json:"createdAt"`
}

func (m *Match) IsParticipant(userID int64) bool {
	return userID == m.UserID || userID == m.MatchedUserID
}

func (m *Match) OtherParticipant(userID int64) int64 {
	if userID == m.UserID {
		return m.MatchedUserID
	}
	return m.UserID
}

func (m *Match) DecisionOf(userID int64) *string {
	if userID == m.UserID {
		return m.UserDecision
	}
	return m.MatchedUserDecision
}

type CreateMatchParams struct {
	UserID             int64
	MatchedUserID      int64
	CompatibilityScore float64
	Status             MatchStatus
	VideoSessionID     *string
	CallCompleted      bool
}

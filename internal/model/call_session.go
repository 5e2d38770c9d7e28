package model

import "time"

// CallSession is a proposed pairing between two independently polling
// users. Participants are stored in canonical order (lower ID first) so
// concurrent creation from both sides resolves to one row.
type CallSession struct {
	ID            string     `db:"id" json:"id"`
	User1ID       int64      `db:"user1_id" json:"user1Id"`
	User2ID       int64      `db:"user2_id" json:"user2Id"`
	Status        CallStatus `db:"status" json:"status"`
	CallCompleted bool       `db:"call_completed" json:"callCompleted"`
	User1Decision *string    `db:"user1_decision" json:"user1Decision,omitempty"`
	User2Decision *string    `db:"user2_decision" json:"user2Decision,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	StartedAt     *time.Time `db:"started_at" json:"startedAt,omitempty"`
	EndedAt       *time.Time `db:"ended_at" json:"endedAt,omitempty"`
}

// CanonicalPair returns the two IDs sorted ascending. All call session
// lookups and inserts use this ordering.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func (c *CallSession) IsParticipant(userID int64) bool {
	return userID == c.User1ID || userID == c.User2ID
}

func (c *CallSession) OtherParticipant(userID int64) int64 {
	if userID == c.User1ID {
		return c.User2ID
	}
	return c.User1ID
}

// DecisionOf returns the stored decision for one participant.
func (c *CallSession) DecisionOf(userID int64) *string {
	if userID == c.User1ID {
		return c.User1Decision
	}
	return c.User2Decision
}

// BothDecided reports whether both participants have submitted a verdict.
func (c *CallSession) BothDecided() bool {
	return c.User1Decision != nil && c.User2Decision != nil
}

// BothLiked reports mutual like, the only combination that promotes the
// pairing to a durable match.
func (c *CallSession) BothLiked() bool {
	return c.BothDecided() &&
		*c.User1Decision == string(DecisionLike) &&
		*c.User2Decision == string(DecisionLike)
}

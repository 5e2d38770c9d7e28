package model

import "time"

// VideoSession is the timer/status record for one call. It is bound to
// exactly one of a call session (instant pairing) or a durable match
// (repeat calls between mutual matches).
type VideoSession struct {
	ID            int64      `db:"id" json:"-"`
	SessionID     string     `db:"session_id" json:"sessionId"`
	CallSessionID *string    `db:"call_session_id" json:"callSessionId,omitempty"`
	MatchID       *int64     `db:"match_id" json:"matchId,omitempty"`
	Status        CallStatus `db:"status" json:"status"`
	StartedAt     *time.Time `db:"started_at" json:"startedAt,omitempty"`
	EndedAt       *time.Time `db:"ended_at" json:"endedAt,omitempty"`

	// Fixed call length in seconds. A deliberate speed-dating constraint,
	// not a tunable SLA.
	Duration int `db:"duration" json:"duration"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateVideoSessionParams struct {
	SessionID     string
	CallSessionID *string
	MatchID       *int64
	Duration      int
}

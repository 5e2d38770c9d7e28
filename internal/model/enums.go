package model

// MatchingSessionStatus is the lifecycle state of a matching episode.
type MatchingSessionStatus string

const (
	MatchingStatusActive    MatchingSessionStatus = "active"
	MatchingStatusCompleted MatchingSessionStatus = "completed"
)

// CallStatus covers both call sessions and their video sessions.
type CallStatus string

const (
	CallStatusWaiting   CallStatus = "waiting"
	CallStatusActive    CallStatus = "active"
	CallStatusCompleted CallStatus = "completed"
	CallStatusCancelled CallStatus = "cancelled"
)

// MatchStatus is the state of a durable match record.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusLiked     MatchStatus = "liked"
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusPassed    MatchStatus = "passed"
	MatchStatusRejected  MatchStatus = "rejected"
	MatchStatusUnmatched MatchStatus = "unmatched"
)

// CallDecision is a participant's post-call verdict.
type CallDecision string

const (
	DecisionLike CallDecision = "like"
	DecisionPass CallDecision = "pass"
)

// EpisodeDecision drives the continuous-matching loop.
type EpisodeDecision string

const (
	EpisodeContinue EpisodeDecision = "continue"
	EpisodeNext     EpisodeDecision = "next"
	EpisodeSkip     EpisodeDecision = "skip"
)

package model

// PairingKind distinguishes the two historically separate pairing paths.
type PairingKind string

const (
	// PairingKindMatch is the durable-match path: a Match row exists and
	// video calls are repeat calls between mutual matches.
	PairingKindMatch PairingKind = "match"

	// PairingKindCall is the instant path: an ephemeral CallSession that
	// only becomes a Match on mutual like.
	PairingKindCall PairingKind = "call"
)

// Pairing is the tagged union over the two pairing paths. Exactly one of
// Match or Call is set, matching Kind.
type Pairing struct {
	Kind  PairingKind
	Match *Match
	Call  *CallSession
}

func PairingFromMatch(m *Match) Pairing {
	return Pairing{Kind: PairingKindMatch, Match: m}
}

func PairingFromCall(c *CallSession) Pairing {
	return Pairing{Kind: PairingKindCall, Call: c}
}

func (p Pairing) IsParticipant(userID int64) bool {
	switch p.Kind {
	case PairingKindMatch:
		return p.Match.IsParticipant(userID)
	case PairingKindCall:
		return p.Call.IsParticipant(userID)
	}
	return false
}

func (p Pairing) Participants() (int64, int64) {
	switch p.Kind {
	case PairingKindMatch:
		return p.Match.UserID, p.Match.MatchedUserID
	case PairingKindCall:
		return p.Call.User1ID, p.Call.User2ID
	}
	return 0, 0
}

func (p Pairing) OtherParticipant(userID int64) int64 {
	switch p.Kind {
	case PairingKindMatch:
		return p.Match.OtherParticipant(userID)
	case PairingKindCall:
		return p.Call.OtherParticipant(userID)
	}
	return 0
}

package model

import (
	"encoding/json"
	"time"
)

// RecipientSelf is the sentinel target meaning "the other participant in
// this session"; resolved by the relay before enqueueing.
const RecipientSelf int64 = 0

// SignalMessage is one WebRTC connection-setup message relayed between the
// two participants of a video session. Only signaling metadata passes
// through here, never media.
type SignalMessage struct {
	Type        string          `json:"type"` // offer, answer, ice-candidate
	Payload     json.RawMessage `json:"payload"`
	SenderID    int64           `json:"senderId"`
	RecipientID int64           `json:"recipientId"`
	Timestamp   time.Time       `json:"timestamp"`
}

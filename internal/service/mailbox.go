package service

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/config"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/redis"
)

// drainScript reads and deletes a mailbox in one round trip so two
// concurrent drains never deliver the same message twice.
var drainScript = goredis.NewScript(`
local msgs = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return msgs
`)

// Mailbox holds per-session, per-recipient signaling queues in Redis.
// Messages are appended in arrival order and handed out in one atomic
// drain. Keys carry a TTL as a backstop; session completion deletes
// them explicitly.
type Mailbox struct {
	client *redis.Client
}

func NewMailbox(client *redis.Client) *Mailbox {
	return &Mailbox{client: client}
}

func (m *Mailbox) Post(ctx context.Context, sessionID string, msg model.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	key := redis.MailboxKey(sessionID, msg.RecipientID)

	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, config.SignalMailboxTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue signal: %w", err)
	}
	return nil
}

// Drain returns every pending message for the recipient, oldest first,
// and empties the mailbox.
func (m *Mailbox) Drain(ctx context.Context, sessionID string, recipientID int64) ([]model.SignalMessage, error) {
	key := redis.MailboxKey(sessionID, recipientID)

	raw, err := drainScript.Run(ctx, m.client, []string{key}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("drain mailbox: %w", err)
	}

	messages := make([]model.SignalMessage, 0, len(raw))
	for _, item := range raw {
		var msg model.SignalMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Warn().
				Err(err).
				Str("sessionId", sessionID).
				Msg("dropping undecodable signal message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear deletes both participants' mailboxes for a finished session.
func (m *Mailbox) Clear(ctx context.Context, sessionID string, participants ...int64) {
	keys := make([]string, 0, len(participants))
	for _, userID := range participants {
		keys = append(keys, redis.MailboxKey(sessionID, userID))
	}
	if len(keys) == 0 {
		return
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Msg("mailbox cleanup failed, keys will expire via TTL")
	}
}

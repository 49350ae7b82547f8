package gitnotes

import (
	"context"
	"fmt"
	"time"

	"github.com/empirica/kernel/internal/models"
)

// MessageStore is the inter-agent async messaging layer built on top of
// the Store's messages namespace (spec.md §4.8 "Message store").
type MessageStore struct {
	store *Store
}

// NewMessageStore creates a MessageStore over an existing notes Store.
func NewMessageStore(store *Store) *MessageStore {
	return &MessageStore{store: store}
}

func messagePath(channel, messageID string) string {
	return fmt.Sprintf("messages/%s/%s", channel, messageID)
}

// Send writes a new InboxMessage under its channel (spec.md §4.8).
func (m *MessageStore) Send(ctx context.Context, msg *models.InboxMessage) error {
	if msg.Status == "" {
		msg.Status = models.MessageUnread
	}
	return m.store.PutNested(ctx, messagePath(msg.Channel, msg.MessageID), msg)
}

// GetInbox filters messages in a channel by recipient, TTL and status
// (spec.md §4.8: `to.ai_id == me OR "*"`, TTL not expired, status filter).
func (m *MessageStore) GetInbox(ctx context.Context, channel string, q models.InboxQuery) ([]*models.InboxMessage, error) {
	ids, err := m.store.ListNamespace(ctx, "messages/"+channel)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []*models.InboxMessage
	for _, id := range ids {
		var msg models.InboxMessage
		if err := m.store.GetNested(ctx, messagePath(channel, id), &msg); err != nil {
			continue
		}
		if msg.To.AIID != q.AIID && msg.To.AIID != "*" {
			continue
		}
		if q.Machine != "" && msg.To.Machine != "" && msg.To.Machine != q.Machine {
			continue
		}
		if !q.IncludeExpired && msg.Expired(now) {
			continue
		}
		if q.Status != "" && msg.Status != q.Status {
			continue
		}
		out = append(out, &msg)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// MarkRead appends a read receipt for aiID and flips status to read, then
// rewrites the note (git notes are content-addressed, so an update is a
// fresh `add -f`, per spec.md §4.8's write protocol).
func (m *MessageStore) MarkRead(ctx context.Context, channel, messageID, aiID, machine string) error {
	var msg models.InboxMessage
	if err := m.store.GetNested(ctx, messagePath(channel, messageID), &msg); err != nil {
		return err
	}
	if msg.ReadBySome(aiID) {
		return nil
	}
	msg.ReadBy = append(msg.ReadBy, models.ReadReceipt{AIID: aiID, Machine: machine, ReadAt: time.Now()})
	msg.Status = models.MessageRead
	return m.store.PutNested(ctx, messagePath(channel, messageID), &msg)
}

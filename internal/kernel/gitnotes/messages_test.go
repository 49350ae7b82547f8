package gitnotes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirica/kernel/internal/models"
)

func newTestMessageStore(t *testing.T) *MessageStore {
	t.Helper()
	return NewMessageStore(newTestStore(t))
}

func TestSend_DefaultsToUnreadStatus(t *testing.T) {
	store := newTestMessageStore(t)
	msg := &models.InboxMessage{
		MessageID: "m1",
		Channel:   "general",
		From:      models.MessageParty{AIID: "ai-a"},
		To:        models.MessageParty{AIID: "ai-b"},
		Timestamp: time.Now(),
		Type:      "request",
		Subject:   "status check",
	}
	require.NoError(t, store.Send(context.Background(), msg))
	assert.Equal(t, models.MessageUnread, msg.Status)
}

func TestGetInbox_FiltersByRecipientTTLAndStatus(t *testing.T) {
	store := newTestMessageStore(t)
	ctx := context.Background()

	mine := &models.InboxMessage{
		MessageID: "mine", Channel: "general",
		From: models.MessageParty{AIID: "ai-a"}, To: models.MessageParty{AIID: "ai-b"},
		Timestamp: time.Now(),
	}
	require.NoError(t, store.Send(ctx, mine))

	broadcast := &models.InboxMessage{
		MessageID: "broadcast", Channel: "general",
		From: models.MessageParty{AIID: "ai-a"}, To: models.MessageParty{AIID: "*"},
		Timestamp: time.Now(),
	}
	require.NoError(t, store.Send(ctx, broadcast))

	notMine := &models.InboxMessage{
		MessageID: "not-mine", Channel: "general",
		From: models.MessageParty{AIID: "ai-a"}, To: models.MessageParty{AIID: "ai-c"},
		Timestamp: time.Now(),
	}
	require.NoError(t, store.Send(ctx, notMine))

	expired := &models.InboxMessage{
		MessageID: "expired", Channel: "general",
		From: models.MessageParty{AIID: "ai-a"}, To: models.MessageParty{AIID: "ai-b"},
		Timestamp: time.Now().Add(-time.Hour), TTLSecs: 60,
	}
	require.NoError(t, store.Send(ctx, expired))

	inbox, err := store.GetInbox(ctx, "general", models.InboxQuery{AIID: "ai-b"})
	require.NoError(t, err)

	var ids []string
	for _, m := range inbox {
		ids = append(ids, m.MessageID)
	}
	assert.ElementsMatch(t, []string{"mine", "broadcast"}, ids)
}

func TestMarkRead_IsIdempotent(t *testing.T) {
	store := newTestMessageStore(t)
	ctx := context.Background()

	msg := &models.InboxMessage{
		MessageID: "m1", Channel: "general",
		From: models.MessageParty{AIID: "ai-a"}, To: models.MessageParty{AIID: "ai-b"},
		Timestamp: time.Now(),
	}
	require.NoError(t, store.Send(ctx, msg))

	require.NoError(t, store.MarkRead(ctx, "general", "m1", "ai-b", "machine-1"))
	require.NoError(t, store.MarkRead(ctx, "general", "m1", "ai-b", "machine-1"))

	inbox, err := store.GetInbox(ctx, "general", models.InboxQuery{AIID: "ai-b", Status: models.MessageRead})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Len(t, inbox[0].ReadBy, 1, "a second MarkRead by the same reader must not duplicate the receipt")
}

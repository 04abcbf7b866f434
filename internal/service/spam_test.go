package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage/memory"
)

func TestSpamService(t *testing.T) {
	store := memory.NewStore()
	svc := NewSpamService(store, zap.NewNop())

	require.NoError(t, store.SaveConversation(&domain.Conversation{
		ID:        "conv-1",
		Subject:   "Cheap watches",
		FromEmail: "spammer@junk.test",
		ToEmail:   "support@acme.test",
		Status:    domain.ConversationNew,
	}))

	var entryID string

	t.Run("加入黑名单联动会话转 spam", func(t *testing.T) {
		entry, err := svc.Add(domain.SpamEntryEmail, " Spammer@Junk.Test ", "repeat offender")
		require.NoError(t, err)
		entryID = entry.ID

		// 值归一化为小写
		assert.Equal(t, "spammer@junk.test", entry.Value)
		assert.Equal(t, "repeat offender", entry.Reason)

		conv, err := store.GetConversation("conv-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationSpam, conv.Status)

		spam, err := store.IsSpamSender("spammer@junk.test")
		require.NoError(t, err)
		assert.True(t, spam)
	})

	t.Run("移出黑名单会话转回 new", func(t *testing.T) {
		require.NoError(t, svc.Delete(entryID))

		conv, err := store.GetConversation("conv-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationNew, conv.Status)

		spam, err := store.IsSpamSender("spammer@junk.test")
		require.NoError(t, err)
		assert.False(t, spam)
	})

	t.Run("空值被拒绝", func(t *testing.T) {
		_, err := svc.Add(domain.SpamEntryEmail, "   ", "")
		assert.ErrorIs(t, err, ErrSpamValueInvalid)
	})
}

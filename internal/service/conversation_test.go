package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/storage/memory"
)

func TestConversationService_Messages(t *testing.T) {
	store := memory.NewStore()
	svc := NewConversationService(store)

	require.NoError(t, store.SaveConversation(&domain.Conversation{
		ID:        "conv-1",
		Subject:   "Printer is broken",
		FromEmail: "jane@customer.test",
		ToEmail:   "support@acme.test",
		Status:    domain.ConversationNew,
	}))
	require.NoError(t, store.SaveMessage(&domain.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		EmailMessageID: "<m1@customer.test>",
		Type:           domain.MessageInitial,
		CreatedAt:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.SaveAttachment(&domain.Attachment{
		ID:        "att-1",
		MessageID: "msg-1",
		Filename:  "invoice.pdf",
		Path:      "attachments/2026/08/x_invoice.pdf",
		MimeType:  "application/pdf",
		Size:      9,
	}))

	t.Run("每条附件记录只出现一次", func(t *testing.T) {
		messages, err := svc.Messages("conv-1")
		require.NoError(t, err)
		require.Len(t, messages, 1)

		require.Len(t, messages[0].Attachments, 1)
		assert.Equal(t, "att-1", messages[0].Attachments[0].ID)
	})

	t.Run("会话不存在返回哨兵错误", func(t *testing.T) {
		_, err := svc.Messages("missing")
		assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	})
}

func TestConversationService_List(t *testing.T) {
	store := memory.NewStore()
	svc := NewConversationService(store)

	t.Run("未知状态被拒绝", func(t *testing.T) {
		bad := domain.ConversationStatus("bogus")
		_, err := svc.List(&bad, 50, 0)
		assert.ErrorIs(t, err, ErrStatusInvalid)
	})

	t.Run("非法分页参数回退默认值", func(t *testing.T) {
		_, err := svc.List(nil, -1, -5)
		assert.NoError(t, err)
	})
}

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helpdesk/backend/internal/content"
	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage/filesystem"
	"helpdesk/backend/internal/storage/memory"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)
	engine := NewEngine(store, blobs, content.NewNormalizer(""), zap.NewNop())
	return engine, store
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:    "acc-1",
		Email: "support@acme.test",
	}
}

func TestEngine_ProcessNewMessage(t *testing.T) {
	engine, store := newTestEngine(t)
	account := testAccount()

	raw := &domain.RawMessage{
		UID:       101,
		MessageID: "<msg-1@customer.test>",
		FromEmail: "Jane@Customer.Test",
		FromName:  "Jane Doe",
		Subject:   "Printer is broken",
		Date:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Text:      "It stopped working this morning.",
	}

	res, err := engine.Process(context.Background(), account, raw)
	require.NoError(t, err)

	t.Run("创建新会话与首封消息", func(t *testing.T) {
		assert.Equal(t, OutcomeStored, res.Outcome)
		assert.True(t, res.NewConversation)

		conv, err := store.GetConversation(res.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, "Printer is broken", conv.Subject)
		assert.Equal(t, "jane@customer.test", conv.FromEmail)
		assert.Equal(t, "support@acme.test", conv.ToEmail)
		assert.Equal(t, domain.ConversationNew, conv.Status)
		assert.Equal(t, "<msg-1@customer.test>", conv.EmailMessageID)

		msg, err := store.GetMessage(res.MessageID)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageInitial, msg.Type)
		assert.Equal(t, domain.MessageUnread, msg.Status)
		assert.Contains(t, msg.Content, "It stopped working this morning.")
	})

	t.Run("联系人已 upsert", func(t *testing.T) {
		contact, err := store.GetSupportContactByEmail("jane@customer.test")
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", contact.Name)
	})

	t.Run("重复投递幂等", func(t *testing.T) {
		res2, err := engine.Process(context.Background(), account, raw)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, res2.Outcome)

		conversations, err := store.ListConversations(nil, 100, 0)
		require.NoError(t, err)
		assert.Len(t, conversations, 1)
	})
}

func TestEngine_ProcessReplyThreading(t *testing.T) {
	engine, store := newTestEngine(t)
	account := testAccount()

	initial := &domain.RawMessage{
		UID:       1,
		MessageID: "<t1@customer.test>",
		FromEmail: "bob@customer.test",
		FromName:  "Bob",
		Subject:   "Cannot log in",
		Date:      time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		Text:      "Password reset does not arrive.",
	}
	first, err := engine.Process(context.Background(), account, initial)
	require.NoError(t, err)

	t.Run("Re: 主题挂接到既有会话", func(t *testing.T) {
		reply := &domain.RawMessage{
			UID:       2,
			MessageID: "<t2@customer.test>",
			FromEmail: "bob@customer.test",
			FromName:  "Bob",
			Subject:   "Re: Cannot log in",
			Date:      time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC),
			Text:      "Still nothing in my inbox.",
		}
		res, err := engine.Process(context.Background(), account, reply)
		require.NoError(t, err)

		assert.Equal(t, OutcomeStored, res.Outcome)
		assert.False(t, res.NewConversation)
		assert.Equal(t, first.ConversationID, res.ConversationID)

		msg, err := store.GetMessage(res.MessageID)
		require.NoError(t, err)
		assert.Equal(t, domain.MessageReply, msg.Type)

		// 客户回信把会话推回 open
		conv, err := store.GetConversation(res.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationOpen, conv.Status)
	})

	t.Run("对回复的回复仍然挂接", func(t *testing.T) {
		reply := &domain.RawMessage{
			UID:       3,
			MessageID: "<t3@customer.test>",
			FromEmail: "bob@customer.test",
			Subject:   "Re: Re: Cannot log in",
			Date:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Text:      "Third time asking.",
		}
		res, err := engine.Process(context.Background(), account, reply)
		require.NoError(t, err)
		assert.Equal(t, first.ConversationID, res.ConversationID)
	})

	t.Run("不同发件人的同主题回复另起会话", func(t *testing.T) {
		reply := &domain.RawMessage{
			UID:       4,
			MessageID: "<t4@other.test>",
			FromEmail: "alice@other.test",
			Subject:   "Re: Cannot log in",
			Date:      time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
			Text:      "Me too.",
		}
		res, err := engine.Process(context.Background(), account, reply)
		require.NoError(t, err)
		assert.True(t, res.NewConversation)
		assert.NotEqual(t, first.ConversationID, res.ConversationID)
	})

	t.Run("人工终态不被回信改写", func(t *testing.T) {
		require.NoError(t, store.UpdateConversationStatus(first.ConversationID, domain.ConversationResolved))

		reply := &domain.RawMessage{
			UID:       5,
			MessageID: "<t5@customer.test>",
			FromEmail: "bob@customer.test",
			Subject:   "Re: Cannot log in",
			Date:      time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
			Text:      "Found it in spam, thanks.",
		}
		res, err := engine.Process(context.Background(), account, reply)
		require.NoError(t, err)
		assert.Equal(t, first.ConversationID, res.ConversationID)

		conv, err := store.GetConversation(first.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationResolved, conv.Status)
	})
}

func TestEngine_ProcessSpamSender(t *testing.T) {
	engine, store := newTestEngine(t)
	account := testAccount()

	require.NoError(t, store.SaveSpamEntry(&domain.SpamEntry{
		Type:  domain.SpamEntryEmail,
		Value: "spammer@junk.test",
	}))

	raw := &domain.RawMessage{
		UID:       9,
		MessageID: "<spam-1@junk.test>",
		FromEmail: "spammer@junk.test",
		Subject:   "Cheap watches",
		Date:      time.Now().UTC(),
		Text:      "Buy now.",
	}
	res, err := engine.Process(context.Background(), account, raw)
	require.NoError(t, err)

	// 黑名单发件人的邮件照常入库，会话直接标记 spam
	assert.Equal(t, OutcomeStored, res.Outcome)
	conv, err := store.GetConversation(res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationSpam, conv.Status)
}

func TestEngine_ProcessAttachments(t *testing.T) {
	engine, store := newTestEngine(t)
	account := testAccount()

	raw := &domain.RawMessage{
		UID:       20,
		MessageID: "<att-1@customer.test>",
		FromEmail: "carol@customer.test",
		Subject:   "Invoice attached",
		Date:      time.Now().UTC(),
		Text:      "See attachment.",
		Attachments: []domain.RawAttachment{
			{Filename: "invoice.pdf", MimeType: "application/pdf", Content: []byte("%PDF-fake")},
			{Filename: "photo.png", MimeType: "image/png", Content: []byte{0x89, 0x50}},
		},
	}
	res, err := engine.Process(context.Background(), account, raw)
	require.NoError(t, err)

	attachments, err := store.ListAttachments(res.MessageID)
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	assert.Equal(t, "invoice.pdf", attachments[0].Filename)
	assert.Equal(t, int64(9), attachments[0].Size)
	assert.NotEmpty(t, attachments[0].Path)
}

func TestEngine_ProcessMissingSender(t *testing.T) {
	engine, store := newTestEngine(t)

	raw := &domain.RawMessage{
		UID:     30,
		Subject: "No sender at all",
		Date:    time.Now().UTC(),
		Text:    "orphan",
	}
	res, err := engine.Process(context.Background(), testAccount(), raw)
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	// 失败的邮件不能留下半成品
	conversations, err := store.ListConversations(nil, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestDedupeID(t *testing.T) {
	t.Run("优先使用 Message-ID", func(t *testing.T) {
		raw := &domain.RawMessage{UID: 7, MessageID: "<id@x>"}
		assert.Equal(t, "<id@x>", DedupeID("acc", raw))
	})

	t.Run("缺 Message-ID 时退化为账户内 UID", func(t *testing.T) {
		raw := &domain.RawMessage{UID: 7}
		assert.Equal(t, "uid-acc-7", DedupeID("acc", raw))
	})

	t.Run("都缺时对内容做哈希", func(t *testing.T) {
		date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		a := &domain.RawMessage{Subject: "s", FromEmail: "f@x", Date: date}
		b := &domain.RawMessage{Subject: "s", FromEmail: "f@x", Date: date}
		c := &domain.RawMessage{Subject: "other", FromEmail: "f@x", Date: date}

		assert.Equal(t, DedupeID("acc", a), DedupeID("acc", b))
		assert.NotEqual(t, DedupeID("acc", a), DedupeID("acc", c))
	})
}

func TestCleanSubject(t *testing.T) {
	assert.Equal(t, "Hello", CleanSubject("Re: Hello"))
	assert.Equal(t, "Hello", CleanSubject("RE: FWD: Fw: Hello"))
	assert.Equal(t, "Hello", CleanSubject("Hello"))
	assert.Equal(t, "Re-invent the wheel", CleanSubject("Re-invent the wheel"))
}

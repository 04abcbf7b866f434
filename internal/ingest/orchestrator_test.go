package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helpdesk/backend/internal/content"
	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/imap"
	"helpdesk/backend/internal/storage/filesystem"
	"helpdesk/backend/internal/storage/memory"
)

// fakeSession 返回预置邮件的假邮箱会话。
type fakeSession struct {
	msgs    []*domain.RawMessage
	listErr error
	// fail 置位时，迭代器在取出 failAfter 封邮件后返回错误
	fail      bool
	failAfter int
	closed    bool
}

func (s *fakeSession) ListNew(ctx context.Context, since time.Time) (imap.MessageIter, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &fakeIter{msgs: s.msgs, fail: s.fail, failAfter: s.failAfter}, nil
}

func (s *fakeSession) Check(ctx context.Context) error { return nil }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeIter struct {
	msgs      []*domain.RawMessage
	fail      bool
	failAfter int
	pos       int
}

func (it *fakeIter) Next() (*domain.RawMessage, error) {
	if it.fail && it.pos >= it.failAfter {
		return nil, errors.New("connection reset")
	}
	if it.pos >= len(it.msgs) {
		return nil, nil
	}
	msg := it.msgs[it.pos]
	it.pos++
	return msg, nil
}

func (it *fakeIter) Close() error { return nil }

// captureNotifier 记录每次批量通知。
type captureNotifier struct {
	calls [][]*Result
}

func (n *captureNotifier) ConversationsChanged(accountID string, results []*Result) {
	n.calls = append(n.calls, results)
}

func newTestOrchestrator(t *testing.T, session *fakeSession) (*Orchestrator, *memory.Store, *captureNotifier) {
	t.Helper()
	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	dial := func(ctx context.Context, account *domain.Account) (imap.MailSession, error) {
		return session, nil
	}
	manager := imap.NewManager(dial, zap.NewNop())
	t.Cleanup(manager.Close)

	engine := NewEngine(store, blobs, content.NewNormalizer(""), zap.NewNop())
	notifier := &captureNotifier{}
	orch := NewOrchestrator(manager, engine, store, notifier, nil, zap.NewNop())
	return orch, store, notifier
}

func saveTestAccount(t *testing.T, store *memory.Store, lastSync *time.Time) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:         "acc-1",
		Email:      "support@acme.test",
		Host:       "imap.acme.test",
		Port:       993,
		Enabled:    true,
		LastSyncAt: lastSync,
	}
	require.NoError(t, store.SaveAccount(account))
	return account
}

func rawMsg(uid uint32, messageID, from, subject string, date time.Time) *domain.RawMessage {
	return &domain.RawMessage{
		UID:       uid,
		MessageID: messageID,
		FromEmail: from,
		Subject:   subject,
		Date:      date,
		Text:      "body of " + subject,
	}
}

func TestOrchestrator_SyncAccount(t *testing.T) {
	d1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("首轮同步入库并推进检查点", func(t *testing.T) {
		session := &fakeSession{msgs: []*domain.RawMessage{
			rawMsg(1, "<a@x>", "jane@customer.test", "First", d1),
			rawMsg(2, "<b@x>", "bob@customer.test", "Second", d2),
		}}
		orch, store, notifier := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, nil)

		res, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)

		assert.Equal(t, 2, res.Processed)
		assert.Equal(t, 0, res.Duplicates)
		assert.Equal(t, 0, res.Failed)

		// 检查点推进到最新邮件的日期
		updated, err := store.GetAccount(account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastSyncAt)
		assert.True(t, updated.LastSyncAt.Equal(d2))

		// 一次同步只发一条批量通知
		require.Len(t, notifier.calls, 1)
		assert.Len(t, notifier.calls[0], 2)
	})

	t.Run("无新邮件时检查点推进到开始时刻", func(t *testing.T) {
		session := &fakeSession{}
		orch, store, notifier := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, nil)

		before := time.Now().UTC()
		res, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Processed)

		updated, err := store.GetAccount(account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastSyncAt)
		assert.False(t, updated.LastSyncAt.Before(before))
		assert.Empty(t, notifier.calls)
	})

	t.Run("重复邮件不计入通知", func(t *testing.T) {
		session := &fakeSession{msgs: []*domain.RawMessage{
			rawMsg(1, "<a@x>", "jane@customer.test", "First", d1),
		}}
		orch, store, notifier := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, nil)

		_, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)

		account, err = store.GetAccount(account.ID)
		require.NoError(t, err)
		res, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)

		assert.Equal(t, 0, res.Processed)
		assert.Equal(t, 1, res.Duplicates)
		assert.Len(t, notifier.calls, 1)
	})

	t.Run("有失败邮件时检查点原地不动", func(t *testing.T) {
		base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
		session := &fakeSession{msgs: []*domain.RawMessage{
			rawMsg(1, "<a@x>", "jane@customer.test", "Good", d1),
			rawMsg(2, "<bad@x>", "", "No sender", d2),
		}}
		orch, store, notifier := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, &base)

		res, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed)
		assert.Equal(t, 1, res.Failed)

		// 失败邮件要在下个周期重拉，检查点停在原位
		updated, err := store.GetAccount(account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastSyncAt)
		assert.True(t, updated.LastSyncAt.Equal(base))

		// 成功入库的那封照常通知
		require.Len(t, notifier.calls, 1)
		assert.Len(t, notifier.calls[0], 1)
	})

	t.Run("流中断保留已入库的邮件", func(t *testing.T) {
		session := &fakeSession{
			msgs: []*domain.RawMessage{
				rawMsg(1, "<a@x>", "jane@customer.test", "First", d1),
				rawMsg(2, "<b@x>", "bob@customer.test", "Second", d2),
			},
			fail:      true,
			failAfter: 1,
		}
		orch, store, notifier := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, nil)

		res, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Processed)

		// 中断后会话被丢弃，检查点推进到已处理的邮件为止
		assert.True(t, session.closed)
		updated, err := store.GetAccount(account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastSyncAt)
		assert.True(t, updated.LastSyncAt.Equal(d1))
		require.Len(t, notifier.calls, 1)
	})

	t.Run("流在首封邮件前中断时检查点原地不动", func(t *testing.T) {
		base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
		session := &fakeSession{
			msgs: []*domain.RawMessage{
				rawMsg(1, "<a@x>", "jane@customer.test", "Never yielded", d1),
			},
			fail: true, // failAfter 0：一封都没吐出来就断
		}
		orch, store, notifier := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, &base)

		res, err := orch.SyncAccount(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Processed)

		// 服务器上还没拉到的邮件不能落到检查点后面
		updated, err := store.GetAccount(account.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LastSyncAt)
		assert.True(t, updated.LastSyncAt.Equal(base))
		assert.Empty(t, notifier.calls)
		assert.True(t, session.closed)
	})

	t.Run("取消的同步返回上下文错误", func(t *testing.T) {
		session := &fakeSession{msgs: []*domain.RawMessage{
			rawMsg(1, "<a@x>", "jane@customer.test", "First", d1),
		}}
		orch, store, _ := newTestOrchestrator(t, session)
		account := saveTestAccount(t, store, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := orch.SyncAccount(ctx, account)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

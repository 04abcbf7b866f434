package imap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helpdesk/backend/internal/domain"
)

type stubSession struct {
	checkErr error
	closed   bool
}

func (s *stubSession) ListNew(ctx context.Context, since time.Time) (MessageIter, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) Check(ctx context.Context) error { return s.checkErr }

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

func managerAccount() *domain.Account {
	return &domain.Account{ID: "acc-1", Email: "support@acme.test", Host: "imap.acme.test"}
}

func TestManager_Acquire(t *testing.T) {
	t.Run("健康会话跨周期复用", func(t *testing.T) {
		dials := 0
		m := NewManager(func(ctx context.Context, account *domain.Account) (MailSession, error) {
			dials++
			return &stubSession{}, nil
		}, zap.NewNop())
		defer m.Close()

		s1, err := m.Acquire(context.Background(), managerAccount())
		require.NoError(t, err)
		m.Release("acc-1")

		s2, err := m.Acquire(context.Background(), managerAccount())
		require.NoError(t, err)
		m.Release("acc-1")

		assert.Same(t, s1, s2)
		assert.Equal(t, 1, dials)
	})

	t.Run("探测失败的会话被丢弃重拨", func(t *testing.T) {
		stale := &stubSession{checkErr: errors.New("connection lost")}
		fresh := &stubSession{}
		sessions := []MailSession{stale, fresh}
		dials := 0
		m := NewManager(func(ctx context.Context, account *domain.Account) (MailSession, error) {
			s := sessions[dials]
			dials++
			return s, nil
		}, zap.NewNop())
		defer m.Close()

		s1, err := m.Acquire(context.Background(), managerAccount())
		require.NoError(t, err)
		assert.Same(t, stale, s1.(*stubSession))
		m.Release("acc-1")

		s2, err := m.Acquire(context.Background(), managerAccount())
		require.NoError(t, err)
		assert.Same(t, fresh, s2.(*stubSession))
		assert.True(t, stale.closed)
		m.Release("acc-1")
	})

	t.Run("Invalidate 后重拨", func(t *testing.T) {
		dials := 0
		m := NewManager(func(ctx context.Context, account *domain.Account) (MailSession, error) {
			dials++
			return &stubSession{}, nil
		}, zap.NewNop())
		defer m.Close()

		_, err := m.Acquire(context.Background(), managerAccount())
		require.NoError(t, err)
		m.Invalidate("acc-1")

		_, err = m.Acquire(context.Background(), managerAccount())
		require.NoError(t, err)
		m.Release("acc-1")

		assert.Equal(t, 2, dials)
	})

	t.Run("连续重拨被限速", func(t *testing.T) {
		dialErr := errors.New("auth failed")
		m := NewManager(func(ctx context.Context, account *domain.Account) (MailSession, error) {
			return nil, dialErr
		}, zap.NewNop())
		defer m.Close()

		// 突发额度内的重拨直接透传拨号错误
		for i := 0; i < 3; i++ {
			_, err := m.Acquire(context.Background(), managerAccount())
			assert.ErrorIs(t, err, dialErr)
		}

		// 额度用尽后被限速器拦下
		_, err := m.Acquire(context.Background(), managerAccount())
		require.Error(t, err)
		assert.True(t, IsThrottled(err))

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "acc-1", connErr.AccountID)
	})
}

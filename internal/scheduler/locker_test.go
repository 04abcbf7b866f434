package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	t.Run("同一账户不可重复加锁", func(t *testing.T) {
		ok, err := locker.TryLock(ctx, "acc-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = locker.TryLock(ctx, "acc-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("不同账户互不影响", func(t *testing.T) {
		ok, err := locker.TryLock(ctx, "acc-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("解锁后可重新获取", func(t *testing.T) {
		require.NoError(t, locker.Unlock(ctx, "acc-1"))

		ok, err := locker.TryLock(ctx, "acc-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("TTL 过期自动失效", func(t *testing.T) {
		ok, err := locker.TryLock(ctx, "acc-3", 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)

		time.Sleep(20 * time.Millisecond)

		ok, err = locker.TryLock(ctx, "acc-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

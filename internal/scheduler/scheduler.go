package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/ingest"
	"helpdesk/backend/internal/pool"
	"helpdesk/backend/internal/storage"
)

// Locker 提供每账户同步互斥。生产实现基于 Redis SET NX，
// 多实例部署时保证一个账户同一时刻只被一个实例同步。
type Locker interface {
	TryLock(ctx context.Context, accountID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, accountID string) error
}

// Config 调度参数。
type Config struct {
	// Interval 轮询间隔
	Interval time.Duration
	// AccountTimeout 单账户一次同步的最长时间
	AccountTimeout time.Duration
	// Workers 并发同步的账户数上限
	Workers int
}

// Scheduler 周期性触发所有启用账户的同步。
//
// 每个 tick 把启用账户逐个派发到协程池；上一轮还没同步完的
// 账户被分布式锁挡掉，本轮直接跳过。Trigger 支持外部立即触发，
// 与定时 tick 走同一条派发路径。
type Scheduler struct {
	orchestrator *ingest.Orchestrator
	store        storage.Store
	locker       Locker
	cfg          Config
	log          *zap.Logger

	pool    *pool.WorkerPool
	trigger chan struct{}
	wg      sync.WaitGroup
}

// New 创建调度器。
func New(orchestrator *ingest.Orchestrator, store storage.Store, locker Locker, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Minute
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 5 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Scheduler{
		orchestrator: orchestrator,
		store:        store,
		locker:       locker,
		cfg:          cfg,
		log:          log,
		pool:         pool.NewWorkerPool(cfg.Workers, cfg.Workers*4, log),
		trigger:      make(chan struct{}, 1),
	}
}

// Start 启动调度循环，ctx 取消后停止。
func (s *Scheduler) Start(ctx context.Context) {
	s.pool.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		// 启动即跑一轮，不等第一个 tick
		s.runDueSyncs(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDueSyncs(ctx)
			case <-s.trigger:
				s.runDueSyncs(ctx)
			}
		}
	}()
}

// Stop 等待调度循环与在途同步退出。
func (s *Scheduler) Stop() {
	s.wg.Wait()
	s.pool.Stop()
}

// Trigger 请求立即执行一轮同步。
// 已有待处理的触发时合并，不排队。
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// runDueSyncs 把所有启用账户派发到协程池。
func (s *Scheduler) runDueSyncs(ctx context.Context) {
	accounts, err := s.store.ListEnabledAccounts()
	if err != nil {
		s.log.Error("failed to list enabled accounts", zap.Error(err))
		return
	}

	for i := range accounts {
		account := accounts[i]
		submitted := s.pool.TrySubmit(func() {
			s.syncOne(ctx, &account)
		})
		if !submitted {
			// 队列满说明同步整体落后；这个账户等下个 tick
			s.log.Warn("sync queue full, skipping account this round",
				zap.String("account_id", account.ID),
				zap.String("email", account.Email),
			)
		}
	}
}

// syncOne 对单个账户执行带锁、带超时的一次同步。
func (s *Scheduler) syncOne(ctx context.Context, account *domain.Account) {
	lockTTL := s.cfg.AccountTimeout + time.Minute
	ok, err := s.locker.TryLock(ctx, account.ID, lockTTL)
	if err != nil {
		s.log.Error("failed to acquire sync lock",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		// 上一轮还没结束
		return
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Unlock(unlockCtx, account.ID); err != nil {
			s.log.Warn("failed to release sync lock",
				zap.String("account_id", account.ID),
				zap.Error(err),
			)
		}
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
	defer cancel()

	if _, err := s.orchestrator.SyncAccount(syncCtx, account); err != nil {
		s.log.Error("account sync failed",
			zap.String("account_id", account.ID),
			zap.String("email", account.Email),
			zap.Error(err),
		)
	}
}

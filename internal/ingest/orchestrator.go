package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/imap"
	"helpdesk/backend/internal/monitoring"
	"helpdesk/backend/internal/storage"
)

// Notifier 接收同步批次产生的变更通知。
// 实现方（WebSocket hub）把通知广播给在线坐席。
type Notifier interface {
	// ConversationsChanged 一次同步里所有新入库消息的批量通知。
	ConversationsChanged(accountID string, results []*Result)
}

// NopNotifier 丢弃所有通知，用于测试和迁移工具。
type NopNotifier struct{}

func (NopNotifier) ConversationsChanged(string, []*Result) {}

// SyncResult 一次账户同步的汇总。
type SyncResult struct {
	Processed  int
	Duplicates int
	Failed     int
	// LastMessageDate 本次取回的最新邮件日期，零值表示无新邮件
	LastMessageDate time.Time
}

// Orchestrator 驱动单个账户的一次完整同步：
// 取会话、拉新邮件、逐封摄取、推进检查点、发出批量通知。
//
// 单封邮件失败只影响它自己；检查点只在对应邮件全部持久化后
// 才前进，失败的邮件会在下个周期重新出现。
type Orchestrator struct {
	manager  *imap.Manager
	engine   *Engine
	store    storage.Store
	notifier Notifier
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewOrchestrator 创建同步编排器。
func NewOrchestrator(
	manager *imap.Manager,
	engine *Engine,
	store storage.Store,
	notifier Notifier,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		manager:  manager,
		engine:   engine,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
	}
}

// SyncAccount 同步一个账户。
//
// 检查点规则：有新邮件时推进到最新邮件的日期，没有新邮件时
// 推进到本次同步的开始时刻；有邮件处理失败、或流在吐出任何
// 邮件前就中断时原地不动。所有推进都经过单调写入，
// 并发或乱序的同步不会把检查点拉回去。
func (o *Orchestrator) SyncAccount(ctx context.Context, account *domain.Account) (*SyncResult, error) {
	done := o.metrics.SyncStarted()
	startedAt := time.Now().UTC()

	session, err := o.manager.Acquire(ctx, account)
	if err != nil {
		done("connect_error")
		return nil, err
	}
	broken := false
	defer func() {
		if broken {
			o.manager.Invalidate(account.ID)
		} else {
			o.manager.Release(account.ID)
		}
	}()

	since := startedAt
	if account.LastSyncAt != nil {
		since = account.LastSyncAt.UTC()
	}

	iter, err := session.ListNew(ctx, since)
	if err != nil {
		broken = true
		done("list_error")
		return nil, fmt.Errorf("list new messages for %s: %w", account.Email, err)
	}
	defer iter.Close()

	result := &SyncResult{}
	var stored []*Result

	for {
		if ctx.Err() != nil {
			broken = true
			done("canceled")
			return result, ctx.Err()
		}

		raw, err := iter.Next()
		if err != nil {
			// 流中断。已取出的邮件都已入库，检查点照常推进到它们为止。
			broken = true
			o.log.Warn("message stream interrupted",
				zap.String("account_id", account.ID),
				zap.String("email", account.Email),
				zap.Int("processed", result.Processed),
				zap.Error(err),
			)
			break
		}
		if raw == nil {
			break
		}

		res, err := o.engine.Process(ctx, account, raw)
		o.metrics.MessageProcessed(string(res.Outcome))
		switch res.Outcome {
		case OutcomeStored:
			result.Processed++
			stored = append(stored, res)
		case OutcomeDuplicate:
			result.Duplicates++
		default:
			result.Failed++
			o.log.Error("failed to ingest message",
				zap.String("account_id", account.ID),
				zap.Uint32("uid", raw.UID),
				zap.String("message_id", raw.MessageID),
				zap.Error(err),
			)
			// 失败的邮件不推进检查点，留给下个周期重试
			continue
		}

		if raw.Date.After(result.LastMessageDate) {
			result.LastMessageDate = raw.Date
		}
	}

	checkpoint := startedAt
	if !result.LastMessageDate.IsZero() {
		checkpoint = result.LastMessageDate.UTC()
	}
	if result.Failed > 0 || (broken && result.LastMessageDate.IsZero()) {
		// 有失败邮件、或流在吐出任何邮件前就中断时不推进，
		// 下个周期重拉整个尾段（去重保证幂等）
		checkpoint = since
	}
	if err := o.store.UpdateLastSync(account.ID, checkpoint); err != nil {
		done("checkpoint_error")
		return result, fmt.Errorf("advance sync checkpoint for %s: %w", account.Email, err)
	}

	if len(stored) > 0 {
		o.notifier.ConversationsChanged(account.ID, stored)
	}

	o.log.Info("account sync finished",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
		zap.Int("processed", result.Processed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	if broken {
		done("interrupted")
	} else {
		done("ok")
	}
	return result, nil
}

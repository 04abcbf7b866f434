package imap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpdesk/backend/internal/domain"
)

// errReconnectThrottled 重拨被限速器拒绝。
// 账户本轮跳过，不算致命错误。
var errReconnectThrottled = errors.New("reconnect throttled")

// IsThrottled 判断错误是否为重拨限速。
func IsThrottled(err error) bool {
	return errors.Is(err, errReconnectThrottled)
}

// MailSession 抽象一条已认证的邮箱会话。
//
// 底层协议客户端是实现细节；摄取管线只依赖这个接口。
type MailSession interface {
	// ListNew 返回 INBOX 中日期不早于 since 的邮件迭代器，按 UID 升序。
	// 迭代器是一次性的，不可重放；拉取过程不改变服务器上的已读状态。
	ListNew(ctx context.Context, since time.Time) (MessageIter, error)
	// Check 轻量存活探测，失败说明会话已不可用。
	Check(ctx context.Context) error
	Close() error
}

// MessageIter 邮件流迭代器。
// 连接中断导致的中途失败由 Next 返回错误；
// 之前已取出的邮件仍然有效，可以继续处理。
type MessageIter interface {
	// Next 返回下一封邮件，流结束时返回 (nil, nil)。
	Next() (*domain.RawMessage, error)
	Close() error
}

// Dialer 建立一条新的已认证会话。
// 测试中用假会话替换，生产环境使用 DialAccount。
type Dialer func(ctx context.Context, account *domain.Account) (MailSession, error)

// ConnectionError 表示会话建立或复用失败。
// 携带账户标识与底层原因；该错误不在连接层重试，
// 重试策略归调度方。
type ConnectionError struct {
	AccountID string
	Email     string
	Cause     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("imap connection failed for %s: %v", e.Email, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

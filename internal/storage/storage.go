package storage

import (
	"context"
	"errors"
	"time"

	"helpdesk/backend/internal/domain"
)

var (
	// ErrAccountNotFound 账户未找到错误
	ErrAccountNotFound = errors.New("account not found")
	// ErrConversationNotFound 会话未找到错误
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound 消息未找到错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrAttachmentNotFound 附件未找到错误
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrContactNotFound 联系人未找到错误
	ErrContactNotFound = errors.New("support contact not found")
	// ErrSpamEntryNotFound 黑名单条目未找到错误
	ErrSpamEntryNotFound = errors.New("spam entry not found")
	// ErrDuplicateMessage 去重标识冲突（并发同步下唯一索引兜底）
	ErrDuplicateMessage = errors.New("duplicate email message id")
)

// AccountRepository 定义 IMAP 账户数据存取操作。
type AccountRepository interface {
	SaveAccount(account *domain.Account) error
	GetAccount(id string) (*domain.Account, error)
	GetAccountByEmail(email string) (*domain.Account, error)
	ListAccounts() ([]domain.Account, error)
	ListEnabledAccounts() ([]domain.Account, error)
	// UpdateLastSync 推进同步检查点。只允许前进，不允许后退。
	UpdateLastSync(accountID string, ts time.Time) error
}

// ConversationRepository 定义会话数据存取操作。
type ConversationRepository interface {
	SaveConversation(conversation *domain.Conversation) error
	GetConversation(id string) (*domain.Conversation, error)
	ListConversations(status *domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error)
	// FindReplyTarget 在指定发件人名下按主题候选集查找回复目标，
	// 多个命中时取最近更新的一个。
	FindReplyTarget(fromEmail string, subjects []string) (*domain.Conversation, error)
	UpdateConversationStatus(id string, status domain.ConversationStatus) error
	// TouchConversation 刷新会话的 UpdatedAt。
	TouchConversation(id string, at time.Time) error
	// UpdateStatusByFromEmail 批量迁移某发件人的会话状态，返回影响行数。
	// 用于黑名单增删时的 spam/new 互转。
	UpdateStatusByFromEmail(fromEmail string, from, to domain.ConversationStatus) (int, error)
	AssignConversation(id, agentID string, at time.Time) error
	UnassignConversation(id string) error
}

// MessageRepository 定义消息数据存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	GetMessage(id string) (*domain.Message, error)
	ListMessages(conversationID string) ([]domain.Message, error)
	// MessageExists 按去重标识判断消息是否已入库。
	MessageExists(emailMessageID string) (bool, error)
	MarkMessageRead(id string, at time.Time) error
	MarkMessageUnread(id string) error
}

// ContactRepository 定义外部联系人数据存取操作。
type ContactRepository interface {
	// UpsertSupportContact 按邮箱地址创建或刷新联系人，返回当前记录。
	UpsertSupportContact(email, name string, seenAt time.Time) (*domain.SupportContact, error)
	GetSupportContactByEmail(email string) (*domain.SupportContact, error)
	GetSupportContact(id string) (*domain.SupportContact, error)
}

// AttachmentRepository 定义附件元数据存取操作。
type AttachmentRepository interface {
	SaveAttachment(attachment *domain.Attachment) error
	GetAttachment(id string) (*domain.Attachment, error)
	ListAttachments(messageID string) ([]domain.Attachment, error)
}

// SpamRepository 定义黑名单数据存取操作。
type SpamRepository interface {
	SaveSpamEntry(entry *domain.SpamEntry) error
	DeleteSpamEntry(id string) (*domain.SpamEntry, error)
	ListSpamEntries() ([]domain.SpamEntry, error)
	// IsSpamSender 判断发件地址是否在黑名单中。
	IsSpamSender(email string) (bool, error)
}

// Store 聚合全部仓储接口。
type Store interface {
	AccountRepository
	ConversationRepository
	MessageRepository
	ContactRepository
	AttachmentRepository
	SpamRepository

	// WithTx 在单个事务内执行 fn。fn 收到的 Store 绑定在事务上，
	// fn 返回非 nil 时整体回滚。摄取引擎依赖它保证
	// 去重检查与后续写入的原子性。
	WithTx(ctx context.Context, fn func(Store) error) error

	// Health 存活检查
	Health() error
	Close() error
}

// BlobStore 定义附件内容的写入与删除。
// 实现方生成相对路径并保证写入唯一。
type BlobStore interface {
	SaveBlob(filename string, content []byte) (path string, err error)
	DeleteBlob(path string) error
	ReadBlob(path string) ([]byte, error)
}

package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk/backend/internal/content"
	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
)

// Outcome 单封邮件的处理结果
type Outcome string

const (
	// OutcomeStored 新消息已入库
	OutcomeStored Outcome = "stored"
	// OutcomeDuplicate 去重标识已存在，跳过
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeFailed 处理失败，写入已回滚
	OutcomeFailed Outcome = "failed"
)

// Result 描述一封邮件的摄取结果。
type Result struct {
	Outcome         Outcome
	ConversationID  string
	MessageID       string
	NewConversation bool
}

// Engine 把一封原始邮件转化为会话与消息记录。
//
// 联系人 upsert、会话创建/挂接、消息与附件写入在单个事务内完成；
// 事务失败整体回滚，同一封邮件下个周期重试不会产生半成品。
type Engine struct {
	store      storage.Store
	blobs      storage.BlobStore
	normalizer *content.Normalizer
	log        *zap.Logger
}

// NewEngine 创建摄取引擎。
func NewEngine(store storage.Store, blobs storage.BlobStore, normalizer *content.Normalizer, log *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		blobs:      blobs,
		normalizer: normalizer,
		log:        log,
	}
}

// replyPrefix 回复/转发主题前缀，大小写不敏感
var replyPrefix = regexp.MustCompile(`(?i)^(Re|Fwd|Fw):\s*`)

// Process 摄取一封邮件。
//
// 去重检查与全部写入在同一事务内：标识已存在时直接返回 Duplicate，
// 不产生任何写入。并发同步下靠消息表的唯一索引兜底，
// 索引冲突同样按 Duplicate 处理。
func (e *Engine) Process(ctx context.Context, account *domain.Account, raw *domain.RawMessage) (*Result, error) {
	dedupeID := DedupeID(account.ID, raw)
	result := &Result{Outcome: OutcomeStored}

	err := e.store.WithTx(ctx, func(tx storage.Store) error {
		exists, err := tx.MessageExists(dedupeID)
		if err != nil {
			return fmt.Errorf("dedupe lookup: %w", err)
		}
		if exists {
			return storage.ErrDuplicateMessage
		}

		now := time.Now().UTC()
		receivedAt := raw.Date
		if receivedAt.IsZero() {
			receivedAt = now
		}

		fromEmail := strings.ToLower(strings.TrimSpace(raw.FromEmail))
		if fromEmail == "" {
			return fmt.Errorf("message %s has no sender address", dedupeID)
		}
		fromName := strings.TrimSpace(raw.FromName)
		if fromName == "" {
			fromName = fromEmail
		}

		contact, err := tx.UpsertSupportContact(fromEmail, fromName, receivedAt)
		if err != nil {
			return fmt.Errorf("upsert contact: %w", err)
		}

		subject := strings.TrimSpace(raw.Subject)
		if subject == "" {
			subject = "(no subject)"
		}

		conv, isNew, err := e.resolveConversation(tx, account, fromEmail, subject, dedupeID, receivedAt)
		if err != nil {
			return err
		}

		msgType := domain.MessageInitial
		if !isNew {
			msgType = domain.MessageReply
		}

		msg := &domain.Message{
			ID:               uuid.NewString(),
			ConversationID:   conv.ID,
			Content:          e.renderContent(raw, msgType),
			EmailMessageID:   dedupeID,
			Type:             msgType,
			Status:           domain.MessageUnread,
			SupportContactID: &contact.ID,
			CreatedAt:        receivedAt,
		}
		if err := tx.SaveMessage(msg); err != nil {
			if errors.Is(err, storage.ErrDuplicateMessage) {
				// 并发同步抢先入库了同一封邮件，回滚本次的全部写入
				return storage.ErrDuplicateMessage
			}
			return fmt.Errorf("save message: %w", err)
		}

		e.persistAttachments(tx, msg.ID, raw.Attachments)

		result.ConversationID = conv.ID
		result.MessageID = msg.ID
		result.NewConversation = isNew
		return nil
	})

	if errors.Is(err, storage.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return &Result{Outcome: OutcomeFailed}, err
	}
	return result, nil
}

// resolveConversation 为消息找到归属会话：
// 回复主题先按发件人+主题候选集挂接既有会话，挂不上或非回复主题
// 则创建新会话（创建时做一次黑名单检查）。
func (e *Engine) resolveConversation(
	tx storage.Store,
	account *domain.Account,
	fromEmail, subject, dedupeID string,
	receivedAt time.Time,
) (*domain.Conversation, bool, error) {
	if replyPrefix.MatchString(subject) {
		cleaned := CleanSubject(subject)
		conv, err := tx.FindReplyTarget(fromEmail, subjectVariants(cleaned))
		if err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
			return nil, false, fmt.Errorf("find reply target: %w", err)
		}
		if conv != nil {
			// 客户回信把会话推回 open；人工终态（resolved/closed/spam）不动
			if !conv.Status.Terminal() && conv.Status != domain.ConversationOpen {
				if err := tx.UpdateConversationStatus(conv.ID, domain.ConversationOpen); err != nil {
					return nil, false, fmt.Errorf("reopen conversation: %w", err)
				}
				conv.Status = domain.ConversationOpen
			}
			if err := tx.TouchConversation(conv.ID, receivedAt); err != nil {
				return nil, false, fmt.Errorf("touch conversation: %w", err)
			}
			return conv, false, nil
		}
	}

	status := domain.ConversationNew
	spam, err := tx.IsSpamSender(fromEmail)
	if err != nil {
		return nil, false, fmt.Errorf("spam lookup: %w", err)
	}
	if spam {
		status = domain.ConversationSpam
	}

	conv := &domain.Conversation{
		ID:             uuid.NewString(),
		Subject:        subject,
		FromEmail:      fromEmail,
		ToEmail:        account.Email,
		Status:         status,
		EmailMessageID: dedupeID,
		DepartmentID:   account.DepartmentID,
		CreatedAt:      receivedAt,
		UpdatedAt:      receivedAt,
	}
	if err := tx.SaveConversation(conv); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// renderContent 生成消息展示正文。
// 纯文本回信先剥掉引用和签名，避免整条线程在每封回信里重复。
func (e *Engine) renderContent(raw *domain.RawMessage, msgType domain.MessageType) string {
	if msgType == domain.MessageReply && strings.TrimSpace(raw.HTML) == "" && strings.TrimSpace(raw.Text) != "" {
		trimmed := *raw
		trimmed.Text = content.VisibleReply(raw.Text)
		return e.normalizer.Normalize(&trimmed)
	}
	return e.normalizer.Normalize(raw)
}

// persistAttachments 落盘并登记附件。
// 单个附件失败不拖垮整封邮件，记日志后继续。
func (e *Engine) persistAttachments(tx storage.Store, messageID string, attachments []domain.RawAttachment) {
	for _, att := range attachments {
		path, err := e.blobs.SaveBlob(att.Filename, att.Content)
		if err != nil {
			e.log.Warn("failed to store attachment blob",
				zap.String("message_id", messageID),
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			continue
		}
		record := &domain.Attachment{
			ID:        uuid.NewString(),
			MessageID: messageID,
			Filename:  att.Filename,
			Path:      path,
			MimeType:  att.MimeType,
			Size:      int64(len(att.Content)),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.SaveAttachment(record); err != nil {
			e.log.Warn("failed to save attachment record",
				zap.String("message_id", messageID),
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			_ = e.blobs.DeleteBlob(path)
		}
	}
}

// DedupeID 计算邮件的去重标识。
//
// 优先用 Message-ID；缺失时退化为账户内 UID；两者都没有时
// 对主题+发件人+日期做哈希。同一封邮件在多次同步中得到
// 相同标识，这是幂等性的根基。
func DedupeID(accountID string, raw *domain.RawMessage) string {
	if id := strings.TrimSpace(raw.MessageID); id != "" {
		return id
	}
	if raw.UID > 0 {
		return fmt.Sprintf("uid-%s-%d", accountID, raw.UID)
	}
	sum := sha256.Sum256([]byte(raw.Subject + "|" + raw.FromEmail + "|" + raw.Date.UTC().Format(time.RFC3339)))
	return "hash-" + hex.EncodeToString(sum[:])
}

// CleanSubject 去掉主题上堆叠的 Re:/Fwd:/Fw: 前缀。
func CleanSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		next := strings.TrimSpace(replyPrefix.ReplaceAllString(s, ""))
		if next == s {
			return s
		}
		s = next
	}
}

// subjectVariants 回复目标查找的主题候选集：
// 清洗后的原主题加上常见前缀变体，覆盖“对回复的回复”。
func subjectVariants(cleaned string) []string {
	return []string{
		cleaned,
		"Re: " + cleaned,
		"Fwd: " + cleaned,
		"Fw: " + cleaned,
	}
}

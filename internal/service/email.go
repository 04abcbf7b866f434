package service

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	netmail "net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
)

var (
	ErrSMTPDisabled    = errors.New("outbound email disabled")
	ErrContentRequired = errors.New("reply content required")
)

// sendAttempts 投递重试次数
const sendAttempts = 3

// EmailService 负责坐席出站回复的组装、投递与入库。
//
// 投递成功才入库；三次尝试都失败时整个操作报错，
// 不会留下"已发送"的幽灵消息。
type EmailService struct {
	store storage.Store
	cfg   *config.SMTPConfig
	log   *zap.Logger
}

// NewEmailService 创建出站邮件服务。
func NewEmailService(store storage.Store, cfg *config.SMTPConfig, log *zap.Logger) *EmailService {
	return &EmailService{store: store, cfg: cfg, log: log}
}

// ReplyInput 定义坐席回复的输入。
type ReplyInput struct {
	ConversationID string
	AgentID        string
	// Content 回复正文（HTML）
	Content string
	// Subject 留空时默认 "Re: <会话主题>"
	Subject string
	CC      []string
	BCC     []string
}

// SendReply 向会话的外部联系人发送回复并入库。
//
// CC/BCC 中的非法地址跳过并记日志，不阻断发送。
func (s *EmailService) SendReply(input ReplyInput) (*domain.Message, error) {
	if s.cfg.Host == "" {
		return nil, ErrSMTPDisabled
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrContentRequired
	}
	if input.AgentID == "" {
		return nil, ErrAgentRequired
	}

	conv, err := s.store.GetConversation(input.ConversationID)
	if err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = "Re: " + conv.Subject
	}

	cc := s.validAddresses(input.CC)
	bcc := s.validAddresses(input.BCC)

	from := s.cfg.FromEmail
	if from == "" {
		from = conv.ToEmail
	}

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), mailDomain(from))
	raw, err := s.compose(conv, from, subject, input.Content, messageID, cc)
	if err != nil {
		return nil, fmt.Errorf("compose reply: %w", err)
	}

	recipients := append([]string{conv.FromEmail}, append(cc, bcc...)...)
	if err := s.deliver(from, recipients, raw); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Content:        input.Content,
		EmailMessageID: messageID,
		Type:           domain.MessageEmail,
		Status:         domain.MessageRead,
		Delivery:       domain.DeliverySent,
		UserID:         &input.AgentID,
		CC:             strings.Join(cc, ","),
		BCC:            strings.Join(bcc, ","),
		ReadAt:         &now,
		CreatedAt:      now,
	}
	if err := s.store.SaveMessage(msg); err != nil {
		return nil, fmt.Errorf("save outbound message: %w", err)
	}

	// 坐席已回复，会话转入等待客户状态；人工终态不动
	if !conv.Status.Terminal() && conv.Status != domain.ConversationPending {
		if err := s.store.UpdateConversationStatus(conv.ID, domain.ConversationPending); err != nil {
			s.log.Warn("failed to move conversation to pending",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
		}
	}
	if err := s.store.TouchConversation(conv.ID, now); err != nil {
		s.log.Warn("failed to touch conversation",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
	return msg, nil
}

// compose 组装 RFC-822 回复原文。
// In-Reply-To/References 只在首封邮件带真实 Message-ID 时填充，
// 合成去重标识（uid-*/hash-*）不会泄漏到线上邮件头里。
func (s *EmailService) compose(conv *domain.Conversation, from, subject, content, messageID string, cc []string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now().UTC())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Name: "", Address: conv.FromEmail}})
	if len(cc) > 0 {
		list := make([]*mail.Address, 0, len(cc))
		for _, addr := range cc {
			list = append(list, &mail.Address{Address: addr})
		}
		h.SetAddressList("Cc", list)
	}
	h.SetSubject(subject)
	h.SetMessageID(messageID)
	if strings.Contains(conv.EmailMessageID, "@") {
		h.SetMsgIDList("In-Reply-To", []string{conv.EmailMessageID})
		h.SetMsgIDList("References", []string{conv.EmailMessageID})
	}
	h.Set("X-Ticket-ID", conv.ID)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	inline, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var ih mail.InlineHeader
	ih.Set("Content-Type", "text/html; charset=utf-8")
	part, err := inline.CreatePart(ih)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, content); err != nil {
		return nil, err
	}
	part.Close()
	inline.Close()
	mw.Close()

	return buf.Bytes(), nil
}

// deliver 投递邮件，最多尝试 sendAttempts 次。
func (s *EmailService) deliver(from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err := s.sendOnce(addr, from, to, raw); err != nil {
			lastErr = err
			s.log.Warn("smtp delivery attempt failed",
				zap.String("addr", addr),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		return nil
	}
	return fmt.Errorf("deliver reply after %d attempts: %w", sendAttempts, lastErr)
}

func (s *EmailService) sendOnce(addr, from string, to []string, raw []byte) error {
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var (
		client *smtp.Client
		err    error
	)
	if s.cfg.StartTLS {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialTLS(addr, tlsConfig)
	}
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return client.Quit()
}

// validAddresses 过滤非法地址，合法地址归一化为小写。
func (s *EmailService) validAddresses(addrs []string) []string {
	var valid []string
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parsed, err := netmail.ParseAddress(addr)
		if err != nil {
			s.log.Warn("skipping invalid recipient address", zap.String("address", addr))
			continue
		}
		valid = append(valid, strings.ToLower(parsed.Address))
	}
	return valid
}

func mailDomain(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i+1 < len(address) {
		return address[i+1:]
	}
	return "helpdesk.local"
}

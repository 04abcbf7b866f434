package service

import (
	"errors"
	"time"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
)

var (
	ErrStatusInvalid = errors.New("conversation status invalid")
	ErrAgentRequired = errors.New("agent id required")
)

// ConversationService 封装会话（工单）的业务操作。
type ConversationService struct {
	store storage.Store
}

// NewConversationService 创建会话业务服务。
func NewConversationService(store storage.Store) *ConversationService {
	return &ConversationService{store: store}
}

// Get 获取会话详情。
func (s *ConversationService) Get(id string) (*domain.Conversation, error) {
	return s.store.GetConversation(id)
}

// List 按状态分页列出会话。status 为 nil 时不过滤。
func (s *ConversationService) List(status *domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error) {
	if status != nil && !status.Valid() {
		return nil, ErrStatusInvalid
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListConversations(status, limit, offset)
}

// Messages 返回会话内全部消息。
// 附件元数据由存储层在 ListMessages 里装配，这里不再二次装配。
func (s *ConversationService) Messages(conversationID string) ([]domain.Message, error) {
	if _, err := s.store.GetConversation(conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(conversationID)
}

// SetStatus 人工变更会话状态。
func (s *ConversationService) SetStatus(id string, status domain.ConversationStatus) error {
	if !status.Valid() {
		return ErrStatusInvalid
	}
	if _, err := s.store.GetConversation(id); err != nil {
		return err
	}
	return s.store.UpdateConversationStatus(id, status)
}

// Assign 把会话指派给坐席，状态变为 assigned。
func (s *ConversationService) Assign(id, agentID string) error {
	if agentID == "" {
		return ErrAgentRequired
	}
	if _, err := s.store.GetConversation(id); err != nil {
		return err
	}
	return s.store.AssignConversation(id, agentID, time.Now().UTC())
}

// Unassign 取消指派，状态回到 open。
func (s *ConversationService) Unassign(id string) error {
	if _, err := s.store.GetConversation(id); err != nil {
		return err
	}
	return s.store.UnassignConversation(id)
}

// MarkMessageRead 把消息标记为已读。
func (s *ConversationService) MarkMessageRead(messageID string) error {
	return s.store.MarkMessageRead(messageID, time.Now().UTC())
}

// MarkMessageUnread 把消息标记为未读。
func (s *ConversationService) MarkMessageUnread(messageID string) error {
	return s.store.MarkMessageUnread(messageID)
}

// Attachment 读取附件元数据。
func (s *ConversationService) Attachment(id string) (*domain.Attachment, error) {
	return s.store.GetAttachment(id)
}

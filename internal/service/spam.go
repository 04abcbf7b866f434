package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
)

var ErrSpamValueInvalid = errors.New("spam entry value invalid")

// SpamService 封装黑名单管理。
//
// 增删条目会联动既有会话：加入黑名单把该发件人的 new 会话
// 批量转成 spam，移除黑名单再把 spam 会话转回 new。
type SpamService struct {
	store storage.Store
	log   *zap.Logger
}

// NewSpamService 创建黑名单业务服务。
func NewSpamService(store storage.Store, log *zap.Logger) *SpamService {
	return &SpamService{store: store, log: log}
}

// List 返回全部黑名单条目。
func (s *SpamService) List() ([]domain.SpamEntry, error) {
	return s.store.ListSpamEntries()
}

// Add 添加黑名单条目，并把该发件人的 new 会话批量转成 spam。
func (s *SpamService) Add(entryType domain.SpamEntryType, value, reason string) (*domain.SpamEntry, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil, ErrSpamValueInvalid
	}

	entry := &domain.SpamEntry{
		ID:        uuid.NewString(),
		Type:      entryType,
		Value:     value,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveSpamEntry(entry); err != nil {
		return nil, err
	}

	if entryType == domain.SpamEntryEmail {
		moved, err := s.store.UpdateStatusByFromEmail(value, domain.ConversationNew, domain.ConversationSpam)
		if err != nil {
			return nil, err
		}
		if moved > 0 {
			s.log.Info("conversations marked as spam",
				zap.String("from_email", value),
				zap.Int("count", moved),
			)
		}
	}
	return entry, nil
}

// Delete 删除黑名单条目，并把该发件人的 spam 会话转回 new。
func (s *SpamService) Delete(id string) error {
	entry, err := s.store.DeleteSpamEntry(id)
	if err != nil {
		return err
	}

	if entry.Type == domain.SpamEntryEmail {
		moved, err := s.store.UpdateStatusByFromEmail(entry.Value, domain.ConversationSpam, domain.ConversationNew)
		if err != nil {
			return err
		}
		if moved > 0 {
			s.log.Info("conversations restored from spam",
				zap.String("from_email", entry.Value),
				zap.Int("count", moved),
			)
		}
	}
	return nil
}

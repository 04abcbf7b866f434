package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
)

// Store 内存存储实现，用于开发环境和测试。
//
// WithTx 通过快照-回滚模拟事务：进入事务时复制全部表，
// fn 失败时整体还原。并发行为与 SQL 存储的事务隔离不完全一致，
// 但对"同一时刻每账户至多一次同步"的前提已经足够。
type Store struct {
	mu sync.RWMutex

	accounts      map[string]*domain.Account
	conversations map[string]*domain.Conversation
	messages      map[string]*domain.Message
	contacts      map[string]*domain.SupportContact
	attachments   map[string]*domain.Attachment
	spamEntries   map[string]*domain.SpamEntry

	// inTx 置位时内层调用不再加锁（WithTx 持有写锁）
	inTx bool
}

// NewStore 创建内存存储。
func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]*domain.Account),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string]*domain.Message),
		contacts:      make(map[string]*domain.SupportContact),
		attachments:   make(map[string]*domain.Attachment),
		spamEntries:   make(map[string]*domain.SpamEntry),
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// ---- AccountRepository ----

// SaveAccount 保存账户，ID 为空时自动生成。
func (s *Store) SaveAccount(account *domain.Account) error {
	defer s.lock()()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = time.Now().UTC()
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *Store) GetAccount(id string) (*domain.Account, error) {
	defer s.rlock()()
	a, ok := s.accounts[id]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccountByEmail(email string) (*domain.Account, error) {
	defer s.rlock()()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storage.ErrAccountNotFound
}

func (s *Store) ListAccounts() ([]domain.Account, error) {
	defer s.rlock()()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) ListEnabledAccounts() ([]domain.Account, error) {
	all, err := s.ListAccounts()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

// UpdateLastSync 推进检查点，只前进不后退。
func (s *Store) UpdateLastSync(accountID string, ts time.Time) error {
	defer s.lock()()
	a, ok := s.accounts[accountID]
	if !ok {
		return storage.ErrAccountNotFound
	}
	if a.LastSyncAt != nil && ts.Before(*a.LastSyncAt) {
		return nil
	}
	t := ts
	a.LastSyncAt = &t
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- ConversationRepository ----

func (s *Store) SaveConversation(conversation *domain.Conversation) error {
	defer s.lock()()
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	if conversation.UpdatedAt.IsZero() {
		conversation.UpdatedAt = now
	}
	cp := *conversation
	s.conversations[conversation.ID] = &cp
	return nil
}

func (s *Store) GetConversation(id string) (*domain.Conversation, error) {
	defer s.rlock()()
	c, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListConversations(status *domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error) {
	defer s.rlock()()
	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, *c)
	}
	// 最近更新在前
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return []domain.Conversation{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// FindReplyTarget 按发件人和主题候选集查找回复目标，最近更新者优先。
func (s *Store) FindReplyTarget(fromEmail string, subjects []string) (*domain.Conversation, error) {
	defer s.rlock()()
	var best *domain.Conversation
	for _, c := range s.conversations {
		if !strings.EqualFold(c.FromEmail, fromEmail) {
			continue
		}
		match := false
		for _, subj := range subjects {
			if c.Subject == subj {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, storage.ErrConversationNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *Store) UpdateConversationStatus(id string, status domain.ConversationStatus) error {
	defer s.lock()()
	c, ok := s.conversations[id]
	if !ok {
		return storage.ErrConversationNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) TouchConversation(id string, at time.Time) error {
	defer s.lock()()
	c, ok := s.conversations[id]
	if !ok {
		return storage.ErrConversationNotFound
	}
	c.UpdatedAt = at
	return nil
}

func (s *Store) UpdateStatusByFromEmail(fromEmail string, from, to domain.ConversationStatus) (int, error) {
	defer s.lock()()
	n := 0
	for _, c := range s.conversations {
		if strings.EqualFold(c.FromEmail, fromEmail) && c.Status == from {
			c.Status = to
			c.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) AssignConversation(id, agentID string, at time.Time) error {
	defer s.lock()()
	c, ok := s.conversations[id]
	if !ok {
		return storage.ErrConversationNotFound
	}
	agent := agentID
	c.AgentID = &agent
	t := at
	c.AssignedAt = &t
	if c.Status == domain.ConversationNew {
		c.Status = domain.ConversationAssigned
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UnassignConversation(id string) error {
	defer s.lock()()
	c, ok := s.conversations[id]
	if !ok {
		return storage.ErrConversationNotFound
	}
	c.AgentID = nil
	c.AssignedAt = nil
	c.Status = domain.ConversationOpen
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- MessageRepository ----

func (s *Store) SaveMessage(message *domain.Message) error {
	defer s.lock()()
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Status == "" {
		message.Status = domain.MessageUnread
	}
	// 去重标识唯一，模拟 SQL 唯一索引
	if message.EmailMessageID != "" {
		for _, m := range s.messages {
			if m.EmailMessageID == message.EmailMessageID && m.ID != message.ID {
				return storage.ErrDuplicateMessage
			}
		}
	}
	cp := *message
	cp.Attachments = nil
	s.messages[message.ID] = &cp
	return nil
}

func (s *Store) GetMessage(id string) (*domain.Message, error) {
	defer s.rlock()()
	m, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMessages(conversationID string) ([]domain.Message, error) {
	defer s.rlock()()
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			cp := *m
			for _, att := range s.attachments {
				if att.MessageID == m.ID {
					a := *att
					cp.Attachments = append(cp.Attachments, &a)
				}
			}
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MessageExists(emailMessageID string) (bool, error) {
	defer s.rlock()()
	if emailMessageID == "" {
		return false, nil
	}
	for _, m := range s.messages {
		if m.EmailMessageID == emailMessageID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MarkMessageRead(id string, at time.Time) error {
	defer s.lock()()
	m, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotFound
	}
	m.Status = domain.MessageRead
	t := at
	m.ReadAt = &t
	return nil
}

func (s *Store) MarkMessageUnread(id string) error {
	defer s.lock()()
	m, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotFound
	}
	m.Status = domain.MessageUnread
	m.ReadAt = nil
	return nil
}

// ---- ContactRepository ----

func (s *Store) UpsertSupportContact(email, name string, seenAt time.Time) (*domain.SupportContact, error) {
	defer s.lock()()
	for _, c := range s.contacts {
		if strings.EqualFold(c.Email, email) {
			if name != "" {
				c.Name = name
			}
			c.LastSeenAt = seenAt
			cp := *c
			return &cp, nil
		}
	}
	c := &domain.SupportContact{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       name,
		LastSeenAt: seenAt,
		CreatedAt:  time.Now().UTC(),
	}
	s.contacts[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Store) GetSupportContactByEmail(email string) (*domain.SupportContact, error) {
	defer s.rlock()()
	for _, c := range s.contacts {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, storage.ErrContactNotFound
}

func (s *Store) GetSupportContact(id string) (*domain.SupportContact, error) {
	defer s.rlock()()
	c, ok := s.contacts[id]
	if !ok {
		return nil, storage.ErrContactNotFound
	}
	cp := *c
	return &cp, nil
}

// ---- AttachmentRepository ----

func (s *Store) SaveAttachment(attachment *domain.Attachment) error {
	defer s.lock()()
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	cp := *attachment
	s.attachments[attachment.ID] = &cp
	return nil
}

func (s *Store) GetAttachment(id string) (*domain.Attachment, error) {
	defer s.rlock()()
	a, ok := s.attachments[id]
	if !ok {
		return nil, storage.ErrAttachmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAttachments(messageID string) ([]domain.Attachment, error) {
	defer s.rlock()()
	out := make([]domain.Attachment, 0)
	for _, a := range s.attachments {
		if a.MessageID == messageID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// ---- SpamRepository ----

func (s *Store) SaveSpamEntry(entry *domain.SpamEntry) error {
	defer s.lock()()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Type == "" {
		entry.Type = domain.SpamEntryEmail
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	s.spamEntries[entry.ID] = &cp
	return nil
}

func (s *Store) DeleteSpamEntry(id string) (*domain.SpamEntry, error) {
	defer s.lock()()
	e, ok := s.spamEntries[id]
	if !ok {
		return nil, storage.ErrSpamEntryNotFound
	}
	delete(s.spamEntries, id)
	cp := *e
	return &cp, nil
}

func (s *Store) ListSpamEntries() ([]domain.SpamEntry, error) {
	defer s.rlock()()
	out := make([]domain.SpamEntry, 0, len(s.spamEntries))
	for _, e := range s.spamEntries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

func (s *Store) IsSpamSender(email string) (bool, error) {
	defer s.rlock()()
	for _, e := range s.spamEntries {
		if e.Type == domain.SpamEntryEmail && strings.EqualFold(e.Value, email) {
			return true, nil
		}
	}
	return false, nil
}

// ---- Store ----

// WithTx 以快照-回滚方式模拟事务。
func (s *Store) WithTx(_ context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	tx := &Store{
		accounts:      s.accounts,
		conversations: s.conversations,
		messages:      s.messages,
		contacts:      s.contacts,
		attachments:   s.attachments,
		spamEntries:   s.spamEntries,
		inTx:          true,
	}
	if err := fn(tx); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type snapshotData struct {
	accounts      map[string]*domain.Account
	conversations map[string]*domain.Conversation
	messages      map[string]*domain.Message
	contacts      map[string]*domain.SupportContact
	attachments   map[string]*domain.Attachment
	spamEntries   map[string]*domain.SpamEntry
}

func (s *Store) snapshot() snapshotData {
	snap := snapshotData{
		accounts:      make(map[string]*domain.Account, len(s.accounts)),
		conversations: make(map[string]*domain.Conversation, len(s.conversations)),
		messages:      make(map[string]*domain.Message, len(s.messages)),
		contacts:      make(map[string]*domain.SupportContact, len(s.contacts)),
		attachments:   make(map[string]*domain.Attachment, len(s.attachments)),
		spamEntries:   make(map[string]*domain.SpamEntry, len(s.spamEntries)),
	}
	for k, v := range s.accounts {
		cp := *v
		snap.accounts[k] = &cp
	}
	for k, v := range s.conversations {
		cp := *v
		snap.conversations[k] = &cp
	}
	for k, v := range s.messages {
		cp := *v
		snap.messages[k] = &cp
	}
	for k, v := range s.contacts {
		cp := *v
		snap.contacts[k] = &cp
	}
	for k, v := range s.attachments {
		cp := *v
		snap.attachments[k] = &cp
	}
	for k, v := range s.spamEntries {
		cp := *v
		snap.spamEntries[k] = &cp
	}
	return snap
}

func (s *Store) restore(snap snapshotData) {
	s.accounts = snap.accounts
	s.conversations = snap.conversations
	s.messages = snap.messages
	s.contacts = snap.contacts
	s.attachments = snap.attachments
	s.spamEntries = snap.spamEntries
}

// Health 存活检查，内存存储恒为健康。
func (s *Store) Health() error { return nil }

// Close 关闭存储。
func (s *Store) Close() error { return nil }

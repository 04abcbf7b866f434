package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         gormDB,
		sqlDB:      db,
		driverName: driverName,
	}

	// 自动执行数据库迁移
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 同步表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Account{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.SupportContact{},
		&domain.Attachment{},
		&domain.SpamEntry{},
	)
}

// ---- AccountRepository ----

func (s *Store) SaveAccount(account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	return s.db.Save(account).Error
}

func (s *Store) GetAccount(id string) (*domain.Account, error) {
	var account domain.Account
	err := s.db.First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) GetAccountByEmail(email string) (*domain.Account, error) {
	var account domain.Account
	err := s.db.First(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) ListAccounts() ([]domain.Account, error) {
	var accounts []domain.Account
	if err := s.db.Order("email").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) ListEnabledAccounts() ([]domain.Account, error) {
	var accounts []domain.Account
	if err := s.db.Where("enabled = ?", true).Order("email").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateLastSync 推进检查点。WHERE 条件保证只前进不后退。
func (s *Store) UpdateLastSync(accountID string, ts time.Time) error {
	res := s.db.Model(&domain.Account{}).
		Where("id = ? AND (last_sync_at IS NULL OR last_sync_at <= ?)", accountID, ts).
		Update("last_sync_at", ts)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

// ---- ConversationRepository ----

func (s *Store) SaveConversation(conversation *domain.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	return s.db.Save(conversation).Error
}

func (s *Store) GetConversation(id string) (*domain.Conversation, error) {
	var conversation domain.Conversation
	err := s.db.First(&conversation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (s *Store) ListConversations(status *domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error) {
	q := s.db.Model(&domain.Conversation{}).Order("updated_at DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var conversations []domain.Conversation
	if err := q.Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

// FindReplyTarget 精确匹配主题候选集，最近更新者优先。
func (s *Store) FindReplyTarget(fromEmail string, subjects []string) (*domain.Conversation, error) {
	if len(subjects) == 0 {
		return nil, storage.ErrConversationNotFound
	}
	var conversation domain.Conversation
	err := s.db.
		Where("from_email = ? AND subject IN ?", fromEmail, subjects).
		Order("updated_at DESC").
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (s *Store) UpdateConversationStatus(id string, status domain.ConversationStatus) error {
	res := s.db.Model(&domain.Conversation{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrConversationNotFound
	}
	return nil
}

func (s *Store) TouchConversation(id string, at time.Time) error {
	res := s.db.Model(&domain.Conversation{}).Where("id = ?", id).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrConversationNotFound
	}
	return nil
}

func (s *Store) UpdateStatusByFromEmail(fromEmail string, from, to domain.ConversationStatus) (int, error) {
	res := s.db.Model(&domain.Conversation{}).
		Where("from_email = ? AND status = ?", fromEmail, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *Store) AssignConversation(id, agentID string, at time.Time) error {
	updates := map[string]interface{}{
		"agent_id":    agentID,
		"assigned_at": at,
		"updated_at":  time.Now().UTC(),
	}
	res := s.db.Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrConversationNotFound
	}
	// new 状态在指派时迁移为 assigned
	return s.db.Model(&domain.Conversation{}).
		Where("id = ? AND status = ?", id, domain.ConversationNew).
		Update("status", domain.ConversationAssigned).Error
}

func (s *Store) UnassignConversation(id string) error {
	res := s.db.Model(&domain.Conversation{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"agent_id":    nil,
			"assigned_at": nil,
			"status":      domain.ConversationOpen,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrConversationNotFound
	}
	return nil
}

// ---- MessageRepository ----

func (s *Store) SaveMessage(message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Status == "" {
		message.Status = domain.MessageUnread
	}
	err := s.db.Create(message).Error
	if err != nil && isUniqueViolation(err) {
		return storage.ErrDuplicateMessage
	}
	return err
}

func (s *Store) GetMessage(id string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.First(&message, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (s *Store) ListMessages(conversationID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// 装配附件
	for i := range messages {
		attachments, err := s.ListAttachments(messages[i].ID)
		if err != nil {
			return nil, err
		}
		for j := range attachments {
			messages[i].Attachments = append(messages[i].Attachments, &attachments[j])
		}
	}
	return messages, nil
}

func (s *Store) MessageExists(emailMessageID string) (bool, error) {
	if emailMessageID == "" {
		return false, nil
	}
	var count int64
	err := s.db.Model(&domain.Message{}).
		Where("email_message_id = ?", emailMessageID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) MarkMessageRead(id string, at time.Time) error {
	res := s.db.Model(&domain.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": domain.MessageRead, "read_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

func (s *Store) MarkMessageUnread(id string) error {
	res := s.db.Model(&domain.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": domain.MessageUnread, "read_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// ---- ContactRepository ----

func (s *Store) UpsertSupportContact(email, name string, seenAt time.Time) (*domain.SupportContact, error) {
	var contact domain.SupportContact
	err := s.db.First(&contact, "email = ?", email).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		contact = domain.SupportContact{
			ID:         uuid.NewString(),
			Email:      email,
			Name:       name,
			LastSeenAt: seenAt,
		}
		if err := s.db.Create(&contact).Error; err != nil {
			return nil, err
		}
		return &contact, nil
	case err != nil:
		return nil, err
	}
	updates := map[string]interface{}{"last_seen_at": seenAt}
	if name != "" {
		updates["name"] = name
	}
	if err := s.db.Model(&contact).Updates(updates).Error; err != nil {
		return nil, err
	}
	contact.LastSeenAt = seenAt
	if name != "" {
		contact.Name = name
	}
	return &contact, nil
}

func (s *Store) GetSupportContactByEmail(email string) (*domain.SupportContact, error) {
	var contact domain.SupportContact
	err := s.db.First(&contact, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *Store) GetSupportContact(id string) (*domain.SupportContact, error) {
	var contact domain.SupportContact
	err := s.db.First(&contact, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// ---- AttachmentRepository ----

func (s *Store) SaveAttachment(attachment *domain.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	return s.db.Create(attachment).Error
}

func (s *Store) GetAttachment(id string) (*domain.Attachment, error) {
	var attachment domain.Attachment
	err := s.db.First(&attachment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (s *Store) ListAttachments(messageID string) ([]domain.Attachment, error) {
	var attachments []domain.Attachment
	err := s.db.Where("message_id = ?", messageID).
		Order("filename").Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

// ---- SpamRepository ----

func (s *Store) SaveSpamEntry(entry *domain.SpamEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Type == "" {
		entry.Type = domain.SpamEntryEmail
	}
	return s.db.Save(entry).Error
}

func (s *Store) DeleteSpamEntry(id string) (*domain.SpamEntry, error) {
	var entry domain.SpamEntry
	err := s.db.First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrSpamEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.Delete(&domain.SpamEntry{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListSpamEntries() ([]domain.SpamEntry, error) {
	var entries []domain.SpamEntry
	if err := s.db.Order("value").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) IsSpamSender(email string) (bool, error) {
	var count int64
	err := s.db.Model(&domain.SpamEntry{}).
		Where("type = ? AND value = ?", domain.SpamEntryEmail, email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ---- Store ----

// WithTx 在一个数据库事务内执行 fn。
// fn 收到的 Store 绑定在事务连接上，返回错误时整体回滚。
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &Store{db: tx, sqlDB: s.sqlDB, driverName: s.driverName}
		return fn(txStore)
	})
}

// Health 存活检查。
func (s *Store) Health() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Ping()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// isUniqueViolation 判断是否为唯一索引冲突。
// MySQL 1062 / PostgreSQL 23505，两种驱动的错误文本各不相同，
// 这里统一按 gorm 的 ErrDuplicatedKey 加文本兜底判断。
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint")
}

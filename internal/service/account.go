package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/imap"
	"helpdesk/backend/internal/storage"
)

var (
	ErrAccountInvalid = errors.New("account invalid")
	ErrEmailInvalid   = errors.New("email address invalid")
)

// AccountService 封装 IMAP 账户的业务操作。
type AccountService struct {
	repo storage.AccountRepository
	dial imap.Dialer
}

// NewAccountService 创建账户业务服务。
func NewAccountService(repo storage.AccountRepository, dial imap.Dialer) *AccountService {
	return &AccountService{repo: repo, dial: dial}
}

// AccountInput 定义创建或更新账户所需的输入。
type AccountInput struct {
	Email        string
	Host         string
	Port         int
	Username     string
	Password     string
	Encryption   domain.EncryptionMode
	ValidateCert bool
	Enabled      bool
	DepartmentID *string
}

// Create 创建新的轮询账户。
func (s *AccountService) Create(input AccountInput) (*domain.Account, error) {
	if err := validateAccountInput(&input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Host:         input.Host,
		Port:         input.Port,
		Username:     input.Username,
		Password:     input.Password,
		Encryption:   input.Encryption,
		ValidateCert: input.ValidateCert,
		Enabled:      input.Enabled,
		DepartmentID: input.DepartmentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.SaveAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// Update 更新账户配置。密码留空表示沿用原密码。
func (s *AccountService) Update(id string, input AccountInput) (*domain.Account, error) {
	account, err := s.repo.GetAccount(id)
	if err != nil {
		return nil, err
	}

	if input.Password == "" {
		input.Password = account.Password
	}
	if err := validateAccountInput(&input); err != nil {
		return nil, err
	}

	account.Email = strings.ToLower(strings.TrimSpace(input.Email))
	account.Host = input.Host
	account.Port = input.Port
	account.Username = input.Username
	account.Password = input.Password
	account.Encryption = input.Encryption
	account.ValidateCert = input.ValidateCert
	account.Enabled = input.Enabled
	account.DepartmentID = input.DepartmentID
	account.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// Get 根据 ID 获取账户。
func (s *AccountService) Get(id string) (*domain.Account, error) {
	return s.repo.GetAccount(id)
}

// List 返回全部账户。
func (s *AccountService) List() ([]domain.Account, error) {
	return s.repo.ListAccounts()
}

// Verify 实际拨一条 IMAP 连接验证账户配置可用。
func (s *AccountService) Verify(ctx context.Context, id string) error {
	account, err := s.repo.GetAccount(id)
	if err != nil {
		return err
	}
	session, err := s.dial(ctx, account)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Check(ctx)
}

func validateAccountInput(input *AccountInput) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(input.Email)); err != nil {
		return ErrEmailInvalid
	}
	if strings.TrimSpace(input.Host) == "" {
		return ErrAccountInvalid
	}
	if input.Port <= 0 || input.Port > 65535 {
		return ErrAccountInvalid
	}
	switch input.Encryption {
	case domain.EncryptionSSL, domain.EncryptionStartTLS, domain.EncryptionNone:
	case "":
		input.Encryption = domain.EncryptionSSL
	default:
		return ErrAccountInvalid
	}
	if strings.TrimSpace(input.Username) == "" {
		input.Username = input.Email
	}
	return nil
}

package domain

import (
	"strconv"
	"time"
)

// EncryptionMode IMAP 连接加密方式
type EncryptionMode string

const (
	// EncryptionSSL 隐式 TLS（连接建立即加密）
	EncryptionSSL EncryptionMode = "ssl"
	// EncryptionStartTLS 先明文连接，再通过 STARTTLS 升级
	EncryptionStartTLS EncryptionMode = "starttls"
	// EncryptionNone 不加密（仅用于本地调试）
	EncryptionNone EncryptionMode = "none"
)

// Account 表示一个被轮询的帮助台收件邮箱（IMAP 账户）。
//
// LastSyncAt 是同步检查点：该时间之前的邮件已全部持久化。
// 只有 Sync Orchestrator 会写这个字段。
type Account struct {
	ID           string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Host         string         `json:"host" gorm:"type:varchar(255);not null"`
	Port         int            `json:"port" gorm:"not null"`
	Username     string         `json:"username" gorm:"type:varchar(255)"`
	Password     string         `json:"-" gorm:"type:varchar(255)"`
	Encryption   EncryptionMode `json:"encryption" gorm:"type:varchar(16);default:'ssl'"`
	ValidateCert bool           `json:"validateCert" gorm:"default:true"`
	Enabled      bool           `json:"enabled" gorm:"default:true;index"`
	DepartmentID *string        `json:"departmentId,omitempty" gorm:"type:varchar(36);index"`
	LastSyncAt   *time.Time     `json:"lastSyncAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Addr 返回 host:port 形式的连接地址。
func (a *Account) Addr() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

package domain

import "time"

// SpamEntryType 黑名单条目类型
type SpamEntryType string

const (
	SpamEntryEmail SpamEntryType = "email"
	SpamEntryPhone SpamEntryType = "phone"
)

// SpamEntry 表示一条黑名单记录。
// 新会话创建时按发件地址查询，命中则直接标记 spam，
// 但不会阻断摄取本身。
type SpamEntry struct {
	ID            string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Type          SpamEntryType `json:"type" gorm:"type:varchar(16);index;default:'email'"`
	Value         string        `json:"value" gorm:"type:varchar(255);index;not null"`
	Reason        string        `json:"reason,omitempty" gorm:"type:varchar(500)"`
	AttemptCount  int           `json:"attemptCount" gorm:"default:0"`
	LastAttemptAt *time.Time    `json:"lastAttemptAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

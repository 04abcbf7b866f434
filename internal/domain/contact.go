package domain

import "time"

// SupportContact 表示外部来信方。
// 每封入站邮件都会按发件地址 upsert 并刷新 LastSeenAt。
type SupportContact struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email      string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name       string    `json:"name" gorm:"type:varchar(255)"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

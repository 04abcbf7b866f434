package domain

import "time"

// Attachment 表示持久化后的邮件附件。
// Path 是 blob 存储内的相对路径，归属于唯一一条消息，
// 消息删除时随之删除。
type Attachment struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID string    `json:"messageId" gorm:"type:varchar(36);index;not null"`
	Filename  string    `json:"filename" gorm:"type:varchar(255)"`
	Path      string    `json:"path" gorm:"type:varchar(500)"`
	MimeType  string    `json:"mimeType" gorm:"type:varchar(255)"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

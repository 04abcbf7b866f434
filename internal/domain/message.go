package domain

import "time"

// MessageType 消息类型：会话首封、入站回复、坐席出站邮件
type MessageType string

const (
	MessageInitial MessageType = "initial"
	MessageReply   MessageType = "reply"
	MessageEmail   MessageType = "email"
)

// MessageStatus 消息读取状态
type MessageStatus string

const (
	MessageUnread MessageStatus = "unread"
	MessageRead   MessageStatus = "read"
)

// DeliveryStatus 出站消息投递状态
type DeliveryStatus string

const (
	DeliverySent DeliveryStatus = "sent"
)

// Message 表示会话内的一条消息。
//
// SupportContactID 与 UserID 互斥：入站消息来自外部联系人，
// 出站消息来自内部坐席。EmailMessageID 是去重标识，
// 同一标识的消息只会入库一次。
type Message struct {
	ID               string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConversationID   string         `json:"conversationId" gorm:"type:varchar(36);index;not null"`
	Content          string         `json:"content" gorm:"type:text"`
	EmailMessageID   string         `json:"emailMessageId" gorm:"type:varchar(512);uniqueIndex"`
	Type             MessageType    `json:"type" gorm:"type:varchar(16);index"`
	Status           MessageStatus  `json:"status" gorm:"type:varchar(16);default:'unread';index"`
	Delivery         DeliveryStatus `json:"delivery,omitempty" gorm:"type:varchar(16)"`
	SupportContactID *string        `json:"supportContactId,omitempty" gorm:"type:varchar(36);index"`
	UserID           *string        `json:"userId,omitempty" gorm:"type:varchar(36);index"`
	CC               string         `json:"cc,omitempty" gorm:"type:varchar(1000)"`
	BCC              string         `json:"-" gorm:"type:varchar(1000)"`
	ReadAt           *time.Time     `json:"readAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	// 附件列表（单独表，查询时装配）
	Attachments []*Attachment `json:"attachments,omitempty" gorm:"-"`
}

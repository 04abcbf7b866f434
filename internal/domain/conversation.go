package domain

import "time"

// ConversationStatus 会话（工单）生命周期状态
type ConversationStatus string

const (
	ConversationNew      ConversationStatus = "new"
	ConversationOpen     ConversationStatus = "open"
	ConversationPending  ConversationStatus = "pending"
	ConversationResolved ConversationStatus = "resolved"
	ConversationClosed   ConversationStatus = "closed"
	ConversationSpam     ConversationStatus = "spam"
	ConversationAssigned ConversationStatus = "assigned"
)

// ConversationStatuses 所有合法状态，用于校验。
var ConversationStatuses = []ConversationStatus{
	ConversationNew,
	ConversationOpen,
	ConversationPending,
	ConversationResolved,
	ConversationClosed,
	ConversationSpam,
	ConversationAssigned,
}

// Valid 判断状态是否合法。
func (s ConversationStatus) Valid() bool {
	for _, v := range ConversationStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal 判断是否为人工控制的终态。
// 摄取管线只会把非终态会话推向 open，绝不回退人工设置的状态。
func (s ConversationStatus) Terminal() bool {
	switch s {
	case ConversationResolved, ConversationClosed, ConversationSpam:
		return true
	}
	return false
}

// Conversation 表示一个帮助台工单线程。
//
// EmailMessageID 记录首封邮件的去重标识，出站回复用它填充
// In-Reply-To / References 头。
type Conversation struct {
	ID               string             `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Subject          string             `json:"subject" gorm:"type:varchar(500);index"`
	FromEmail        string             `json:"fromEmail" gorm:"type:varchar(255);index"`
	ToEmail          string             `json:"toEmail" gorm:"type:varchar(255);index"`
	Status           ConversationStatus `json:"status" gorm:"type:varchar(16);index;default:'new'"`
	EmailMessageID   string             `json:"emailMessageId" gorm:"type:varchar(512)"`
	SupportContactID string             `json:"supportContactId" gorm:"type:varchar(36);index"`
	DepartmentID     *string            `json:"departmentId,omitempty" gorm:"type:varchar(36);index"`
	AgentID          *string            `json:"agentId,omitempty" gorm:"type:varchar(36);index"`
	AssignedAt       *time.Time         `json:"assignedAt,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt" gorm:"index"`
}

package domain

import "time"

// RawAttachment 是尚未落盘的附件内容。
type RawAttachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// RawMessage 是一次同步中从邮件服务器取回的原始邮件。
// 只在单次同步内存活，从不原样入库，入库的是派生记录。
type RawMessage struct {
	// UID 服务器分配的邮件序号（在一个邮箱内单调递增）
	UID uint32
	// MessageID 邮件头 Message-ID（可能为空）
	MessageID string
	FromEmail string
	FromName  string
	Subject   string
	Date      time.Time
	HTML      string
	Text      string
	// Raw 完整 RFC-822 原文，解析失败时用于兜底渲染
	Raw         []byte
	Attachments []RawAttachment
}

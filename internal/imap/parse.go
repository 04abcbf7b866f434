package imap

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	// 注册 windows-1252、iso-8859-*、gbk 等字符集解码器
	_ "github.com/emersion/go-message/charset"

	"helpdesk/backend/internal/domain"
)

// ParseRawMessage 把一封 RFC-822 原文解析为 RawMessage。
//
// 解析尽力而为：头部缺失、MIME 结构损坏都不会让整封邮件丢失，
// 最差情况下正文落在 Text 字段、原文保留在 Raw 里交给上层兜底。
func ParseRawMessage(uid uint32, raw []byte) *domain.RawMessage {
	msg := &domain.RawMessage{
		UID: uid,
		Raw: raw,
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// 连信封都解不出来，原文当纯文本处理
		msg.Text = string(raw)
		return msg
	}

	if id, err := mr.Header.MessageID(); err == nil {
		msg.MessageID = id
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date.UTC()
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromEmail = from[0].Address
		msg.FromName = from[0].Name
	} else {
		msg.FromEmail = cleanAddress(mr.Header.Get("From"))
	}
	// 显示名缺失时用地址的本地部分
	if msg.FromName == "" && msg.FromEmail != "" {
		msg.FromName = strings.SplitN(msg.FromEmail, "@", 2)[0]
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// MIME 结构损坏，保留已解析的部分
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/html") && msg.HTML == "":
				msg.HTML = string(body)
			case strings.HasPrefix(contentType, "text/plain") && msg.Text == "":
				msg.Text = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			msg.Attachments = append(msg.Attachments, domain.RawAttachment{
				Filename: filename,
				MimeType: contentType,
				Content:  content,
			})
		}
	}

	return msg
}

// cleanAddress 去掉显示名部分，只留邮箱地址。
// "Jane Doe" <jane@x.com> → jane@x.com
func cleanAddress(value string) string {
	if start := strings.LastIndex(value, "<"); start >= 0 {
		if end := strings.Index(value[start:], ">"); end > 0 {
			return strings.TrimSpace(value[start+1 : start+end])
		}
	}
	return strings.TrimSpace(strings.Trim(value, `"' `))
}

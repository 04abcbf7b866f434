package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/service"
	"helpdesk/backend/internal/storage"
)

// ConversationHandler 会话与消息接口。
type ConversationHandler struct {
	conversations *service.ConversationService
	email         *service.EmailService
	blobs         storage.BlobStore
}

// NewConversationHandler 创建会话处理器。
func NewConversationHandler(conversations *service.ConversationService, email *service.EmailService, blobs storage.BlobStore) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		email:         email,
		blobs:         blobs,
	}
}

// List 按状态分页列出会话。
func (h *ConversationHandler) List(c *gin.Context) {
	var status *domain.ConversationStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.ConversationStatus(raw)
		status = &s
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, err := h.conversations.List(status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, conversations)
}

// Get 返回会话详情。
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, conv)
}

// Messages 返回会话内全部消息。
func (h *ConversationHandler) Messages(c *gin.Context) {
	messages, err := h.conversations.Messages(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, messages)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus 人工变更会话状态。
func (h *ConversationHandler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.conversations.SetStatus(c.Param("id"), domain.ConversationStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

type assignRequest struct {
	AgentID string `json:"agentId" binding:"required"`
}

// Assign 把会话指派给坐席。
func (h *ConversationHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.conversations.Assign(c.Param("id"), req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

// Unassign 取消会话指派。
func (h *ConversationHandler) Unassign(c *gin.Context) {
	if err := h.conversations.Unassign(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

type replyRequest struct {
	AgentID string   `json:"agentId" binding:"required"`
	Content string   `json:"content" binding:"required"`
	Subject string   `json:"subject"`
	CC      []string `json:"cc"`
	BCC     []string `json:"bcc"`
}

// Reply 坐席回复会话（出站邮件）。
func (h *ConversationHandler) Reply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	msg, err := h.email.SendReply(service.ReplyInput{
		ConversationID: c.Param("id"),
		AgentID:        req.AgentID,
		Content:        req.Content,
		Subject:        req.Subject,
		CC:             req.CC,
		BCC:            req.BCC,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, msg)
}

// MarkRead 标记消息已读。
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.conversations.MarkMessageRead(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

// MarkUnread 标记消息未读。
func (h *ConversationHandler) MarkUnread(c *gin.Context) {
	if err := h.conversations.MarkMessageUnread(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

// Attachment 下载附件内容。
func (h *ConversationHandler) Attachment(c *gin.Context) {
	att, err := h.conversations.Attachment(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	content, err := h.blobs.ReadBlob(att.Path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+att.Filename+`"`)
	c.Data(200, att.MimeType, content)
}

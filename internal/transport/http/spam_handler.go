package httptransport

import (
	"github.com/gin-gonic/gin"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/service"
)

// SpamHandler 黑名单管理接口。
type SpamHandler struct {
	spam *service.SpamService
}

// NewSpamHandler 创建黑名单处理器。
func NewSpamHandler(spam *service.SpamService) *SpamHandler {
	return &SpamHandler{spam: spam}
}

// List 返回全部黑名单条目。
func (h *SpamHandler) List(c *gin.Context) {
	entries, err := h.spam.List()
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, entries)
}

type spamRequest struct {
	Type   string `json:"type"`
	Value  string `json:"value" binding:"required"`
	Reason string `json:"reason"`
}

// Add 添加黑名单条目（联动既有会话转 spam）。
func (h *SpamHandler) Add(c *gin.Context) {
	var req spamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	entryType := domain.SpamEntryType(req.Type)
	if entryType == "" {
		entryType = domain.SpamEntryEmail
	}
	entry, err := h.spam.Add(entryType, req.Value, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, entry)
}

// Delete 删除黑名单条目（联动 spam 会话转回 new）。
func (h *SpamHandler) Delete(c *gin.Context) {
	if err := h.spam.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"helpdesk/backend/internal/service"
	"helpdesk/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	storage.ErrAccountNotFound:      "账户不存在",
	storage.ErrConversationNotFound: "会话不存在",
	storage.ErrMessageNotFound:      "消息不存在",
	storage.ErrAttachmentNotFound:   "附件不存在",
	storage.ErrSpamEntryNotFound:    "黑名单条目不存在",

	service.ErrAccountInvalid:   "账户配置无效",
	service.ErrEmailInvalid:     "邮箱地址格式无效",
	service.ErrStatusInvalid:    "会话状态无效",
	service.ErrAgentRequired:    "缺少坐席标识",
	service.ErrSpamValueInvalid: "黑名单条目格式无效",
	service.ErrSMTPDisabled:     "出站邮件未配置",
	service.ErrContentRequired:  "回复内容不能为空",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for known, msg := range errorMessages {
		if errors.Is(err, known) {
			return msg
		}
	}
	return err.Error()
}

// respondError 按错误类别选择响应状态码。
func respondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)
	switch {
	case errors.Is(err, storage.ErrAccountNotFound),
		errors.Is(err, storage.ErrConversationNotFound),
		errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, storage.ErrAttachmentNotFound),
		errors.Is(err, storage.ErrSpamEntryNotFound):
		NotFound(c, msg)
	case errors.Is(err, service.ErrAccountInvalid),
		errors.Is(err, service.ErrEmailInvalid),
		errors.Is(err, service.ErrStatusInvalid),
		errors.Is(err, service.ErrAgentRequired),
		errors.Is(err, service.ErrSpamValueInvalid),
		errors.Is(err, service.ErrContentRequired):
		BadRequest(c, msg)
	default:
		InternalError(c, msg)
	}
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)

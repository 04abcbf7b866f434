package httptransport

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"helpdesk/backend/internal/domain"
	"helpdesk/backend/internal/service"
)

// AccountHandler 账户管理接口。
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler 创建账户处理器。
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type accountRequest struct {
	Email        string  `json:"email" binding:"required"`
	Host         string  `json:"host" binding:"required"`
	Port         int     `json:"port" binding:"required"`
	Username     string  `json:"username"`
	Password     string  `json:"password"`
	Encryption   string  `json:"encryption"`
	ValidateCert *bool   `json:"validateCert"`
	Enabled      *bool   `json:"enabled"`
	DepartmentID *string `json:"departmentId"`
}

func (r *accountRequest) toInput() service.AccountInput {
	validateCert := true
	if r.ValidateCert != nil {
		validateCert = *r.ValidateCert
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return service.AccountInput{
		Email:        r.Email,
		Host:         r.Host,
		Port:         r.Port,
		Username:     r.Username,
		Password:     r.Password,
		Encryption:   domain.EncryptionMode(r.Encryption),
		ValidateCert: validateCert,
		Enabled:      enabled,
		DepartmentID: r.DepartmentID,
	}
}

// List 返回全部账户及同步状态。
func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.accounts.List()
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, accounts)
}

// Get 返回单个账户。
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.accounts.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, account)
}

// Create 创建账户。
func (h *AccountHandler) Create(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	account, err := h.accounts.Create(req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, account)
}

// Update 更新账户。
func (h *AccountHandler) Update(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	account, err := h.accounts.Update(c.Param("id"), req.toInput())
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, account)
}

// Verify 实际连接一次 IMAP 验证账户配置。
func (h *AccountHandler) Verify(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.accounts.Verify(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"verifiedAt": time.Now().UTC()})
}

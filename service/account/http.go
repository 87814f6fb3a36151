package account

import (
	"net/http"

	"RentChat/middleware"
	"RentChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// HTTP 表面。全部挂在 Auth 中间件之后，当前用户从 context 取。

type otpRequest struct {
	Scope string `json:"scope" binding:"required"`
}

type passwordRequest struct {
	Code         string `json:"code" binding:"required"`
	PasswordHash string `json:"passwordHash" binding:"required"`
}

type phoneRequest struct {
	Code     string `json:"code" binding:"required"`
	NewPhone string `json:"newPhone" binding:"required"`
}

type deleteRequest struct {
	Code string `json:"code" binding:"required"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/account/otp", h.requestOTP)
	g.POST("/account/password", h.changePassword)
	g.POST("/account/phone", h.updatePhone)
	g.DELETE("/account", h.deleteAccount)
}

func reply(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	ce := errs.AsCodeError(err)
	if ce == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}
	status := http.StatusBadRequest
	switch errs.Classify(err) {
	case errs.KindRateLimit:
		status = http.StatusTooManyRequests
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindCircuitOpen:
		status = http.StatusServiceUnavailable
	case errs.KindNetwork, errs.KindTimeout, errs.KindServer, errs.KindUnknown:
		status = http.StatusInternalServerError
	}
	body := gin.H{"code": ce.Code, "msg": ce.Msg}
	if ce.Cooldown > 0 {
		body["cooldownMs"] = ce.Cooldown.Milliseconds()
	}
	c.JSON(status, body)
}

func (h *Handler) requestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	reply(c, h.svc.RequestOTP(c.Request.Context(), middleware.UserID(c), req.Scope))
}

func (h *Handler) changePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	reply(c, h.svc.ChangePassword(c.Request.Context(), middleware.UserID(c), req.Code, req.PasswordHash))
}

func (h *Handler) updatePhone(c *gin.Context) {
	var req phoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	reply(c, h.svc.UpdatePhone(c.Request.Context(), middleware.UserID(c), req.Code, req.NewPhone))
}

func (h *Handler) deleteAccount(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		reply(c, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	reply(c, h.svc.DeleteAccount(c.Request.Context(), middleware.UserID(c), req.Code))
}

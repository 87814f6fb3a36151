package chat

import (
	"net/http"
	"strconv"

	"RentChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// REST 侧：历史分页、消息删除、角标拉取。实时侧走 WebSocket，
// 冷数据走这里。

const defaultHistoryLimit = 50

func httpStatus(err error) int {
	switch errs.Classify(err) {
	case errs.KindAuth:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	ce := errs.AsCodeError(err)
	if ce == nil {
		ce = &errs.CodeError{Code: 500, Msg: "internal error"}
	}
	c.JSON(httpStatus(err), gin.H{"code": ce.Code, "msg": ce.Msg})
}

// HandleHistory GET /conversations/:id/messages?limit=&before=
// 返回窗口内按时间升序的消息，软删除的不出现。
func (s *Server) HandleHistory(c *gin.Context) {
	user, err := s.authenticate(c)
	if err != nil {
		abortWith(c, err)
		return
	}

	convID := c.Param("id")
	conv, err := s.store.FindConversation(c.Request.Context(), convID)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !conv.HasParticipant(user.ID) {
		abortWith(c, &errs.ErrForbidden)
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)), 10, 64)
	before, _ := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}

	msgs, err := s.store.ListMessages(c.Request.Context(), convID, limit, before)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": convID, "messages": msgs})
}

// HandleDeleteMessage DELETE /messages/:id —— 软删除，仅发送者可删。
func (s *Server) HandleDeleteMessage(c *gin.Context) {
	user, err := s.authenticate(c)
	if err != nil {
		abortWith(c, err)
		return
	}
	if err := s.store.SoftDeleteMessage(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// HandleUnread GET /unread —— 拉取角标，口径与 unread.update 推送同源。
func (s *Server) HandleUnread(c *gin.Context) {
	user, err := s.authenticate(c)
	if err != nil {
		abortWith(c, err)
		return
	}
	msgs, err := s.unread.UnreadMessageCount(c.Request.Context(), user.ID)
	if err != nil {
		abortWith(c, err)
		return
	}
	notifs, err := s.unread.UnreadNotificationCount(c.Request.Context(), user.ID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "notifications": notifs})
}

// RegisterRoutes 挂到 gin 引擎。
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", s.HandleWS)
	r.GET("/conversations/:id/messages", s.HandleHistory)
	r.DELETE("/messages/:id", s.HandleDeleteMessage)
	r.GET("/unread", s.HandleUnread)
}

package handlers

import (
	"context"
	"time"

	"RentChat/resilience"
	"RentChat/service/chat"
	"RentChat/service/events"
	"RentChat/tools/decode"
	"RentChat/tools/errs"
)

type SendHandler struct{}

func NewSendHandler() chat.Handler { return &SendHandler{} }

func (h *SendHandler) Type() string { return events.TypeMessageSend }

// Handle message.send 走 message_send 熔断器：持久层连续失败时
// 快速拒绝，别让每个发送者都去排队等超时。
func (h *SendHandler) Handle(c *chat.Context, f *events.Frame) error {
	p, err := decode.DecodeMap[events.SendPayload](f.Payload)
	if err != nil || p.ConversationID == "" {
		c.ReplyError(errs.ErrValidation.WithDetail("send requires conversationId"), "")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.S.Breakers().Do(resilience.ClassMessageSend, func() error {
		_, serr := c.S.Pipeline().Send(ctx, p.ConversationID, c.Conn.UserID, p.Text, p.Attachment, p.TempID)
		return serr
	})
	if err != nil {
		// tempId 带回去，发送端据此回滚乐观插入的那条
		c.ReplyError(err, p.TempID)
	}
	return nil
}

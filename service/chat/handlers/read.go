package handlers

import (
	"context"
	"time"

	"RentChat/service/chat"
	"RentChat/service/events"
	"RentChat/tools/decode"
	"RentChat/tools/errs"
)

type ReadHandler struct{}

func NewReadHandler() chat.Handler { return &ReadHandler{} }

func (h *ReadHandler) Type() string { return events.TypeMessageRead }

// Handle 标已读幂等，重复上报无害，所以不做去重。
func (h *ReadHandler) Handle(c *chat.Context, f *events.Frame) error {
	p, err := decode.DecodeMap[events.ReadPayload](f.Payload)
	if err != nil || p.ConversationID == "" {
		c.ReplyError(errs.ErrValidation.WithDetail("read requires conversationId"), "")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := c.S.Unread().MarkRead(ctx, p.ConversationID, c.Conn.UserID); err != nil {
		c.ReplyError(err, "")
	}
	return nil
}

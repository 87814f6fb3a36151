package handlers

import (
	"RentChat/service/chat"
	"RentChat/service/events"
	"RentChat/tools/decode"
	"RentChat/tools/errs"
)

// typing 信号只转发给已入房的连接；没进过房的连接乱发 typing
// 直接忽略，不值得一次存储查询。

type TypingStartHandler struct{}

func NewTypingStartHandler() chat.Handler { return &TypingStartHandler{} }

func (h *TypingStartHandler) Type() string { return events.TypeTypingStart }

func (h *TypingStartHandler) Handle(c *chat.Context, f *events.Frame) error {
	if conv, ok := typingConversation(c, f); ok {
		c.S.Typing().TypingStart(conv, c.Conn.UserID, c.Conn.ID)
	}
	return nil
}

type TypingStopHandler struct{}

func NewTypingStopHandler() chat.Handler { return &TypingStopHandler{} }

func (h *TypingStopHandler) Type() string { return events.TypeTypingStop }

func (h *TypingStopHandler) Handle(c *chat.Context, f *events.Frame) error {
	if conv, ok := typingConversation(c, f); ok {
		c.S.Typing().TypingStop(conv, c.Conn.UserID, c.Conn.ID)
	}
	return nil
}

func typingConversation(c *chat.Context, f *events.Frame) (string, bool) {
	p, err := decode.DecodeMap[events.TypingPayload](f.Payload)
	if err != nil || p.ConversationID == "" {
		c.ReplyError(errs.ErrValidation.WithDetail("typing requires conversationId"), "")
		return "", false
	}
	if !c.S.Rooms().InRoom(events.ConversationRoom(p.ConversationID), c.Conn.ID) {
		return "", false
	}
	return p.ConversationID, true
}

package handlers

import (
	"context"
	"time"

	"RentChat/service/chat"
	"RentChat/service/events"
	"RentChat/tools/decode"
	"RentChat/tools/errs"
)

type JoinHandler struct{}

func NewJoinHandler() chat.Handler { return &JoinHandler{} }

func (h *JoinHandler) Type() string { return events.TypeJoinConversation }

// Handle 入房前重新核对参与者资格。握手时合法不代表现在还合法，
// 会话成员可能已经变了。
func (h *JoinHandler) Handle(c *chat.Context, f *events.Frame) error {
	p, err := decode.DecodeMap[events.JoinPayload](f.Payload)
	if err != nil || p.ConversationID == "" {
		c.ReplyError(errs.ErrValidation.WithDetail("join requires conversationId"), "")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conv, err := c.S.Store().FindConversation(ctx, p.ConversationID)
	if err != nil {
		c.ReplyError(err, "")
		return nil
	}
	if !conv.HasParticipant(c.Conn.UserID) {
		c.ReplyError(errs.ErrForbidden.WithDetail("not a participant"), "")
		return nil
	}

	c.S.Rooms().Join(events.ConversationRoom(p.ConversationID), c.Conn.ID)
	return nil
}

type LeaveHandler struct{}

func NewLeaveHandler() chat.Handler { return &LeaveHandler{} }

func (h *LeaveHandler) Type() string { return events.TypeLeaveConversation }

func (h *LeaveHandler) Handle(c *chat.Context, f *events.Frame) error {
	p, err := decode.DecodeMap[events.JoinPayload](f.Payload)
	if err != nil || p.ConversationID == "" {
		c.ReplyError(errs.ErrValidation.WithDetail("leave requires conversationId"), "")
		return nil
	}
	c.S.Rooms().Leave(events.ConversationRoom(p.ConversationID), c.Conn.ID)
	return nil
}

package chat

import (
	"RentChat/logger"
	"RentChat/service/events"
	"RentChat/tools/errs"
)

// Handler 一类上行帧的处理器。Type 即注册键。
type Handler interface {
	Type() string
	Handle(ctx *Context, f *events.Frame) error
}

// Context 随帧传给处理器：当前服务 + 当前连接。
type Context struct {
	S    *Server
	Conn *Conn
}

// ReplyError 把业务错误编成 error 帧写回本连接。
// 非 CodeError 一律收敛成 SERVER，内部细节不出网。
func (c *Context) ReplyError(err error, tempID string) {
	code, msg := 500, "internal error"
	if ce := errs.AsCodeError(err); ce != nil {
		code, msg = ce.Code, ce.Msg
	}
	payload, berr := events.Build(events.TypeError, events.ErrorPayload{
		Code:    code,
		Message: msg,
		TempID:  tempID,
	})
	if berr != nil {
		logger.Errorf("[dispatch] build error frame: %v", berr)
		return
	}
	c.Conn.Enqueue(payload)
}

// Reply 编码并写回本连接。
func (c *Context) Reply(eventType string, payload any) {
	raw, err := events.Build(eventType, payload)
	if err != nil {
		logger.Errorf("[dispatch] build %s frame: %v", eventType, err)
		return
	}
	c.Conn.Enqueue(raw)
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

// Dispatch 路由一帧。未知事件回 error 帧但不断连接，
// 老客户端发新事件时只失去该功能。
func (d *Dispatcher) Dispatch(ctx *Context, f *events.Frame) {
	h, ok := d.handlers[f.Type]
	if !ok {
		logger.Debugf("[dispatch] no handler for type=%s conn=%s", f.Type, ctx.Conn.ID)
		ctx.ReplyError(errs.ErrValidation.WithDetail("unknown event "+f.Type), "")
		return
	}
	if err := h.Handle(ctx, f); err != nil {
		logger.Infof("[dispatch] handler %s err conn=%s user=%s: %v", f.Type, ctx.Conn.ID, ctx.Conn.UserID, err)
	}
}

package handlers

import (
	"RentChat/service/chat"
	"RentChat/service/events"
)

// 应用层 ping：浏览器 WebSocket 发不了协议层 ping 帧，
// 客户端靠这个探测连接活性。

type PingHandler struct{}

func NewPingHandler() chat.Handler { return &PingHandler{} }

func (h *PingHandler) Type() string { return events.TypePing }

func (h *PingHandler) Handle(c *chat.Context, f *events.Frame) error {
	c.Reply(events.TypePong, nil)
	return nil
}

package handlers

import "RentChat/service/chat"

// RegisterAll 注册全部上行帧处理器。
func RegisterAll(d *chat.Dispatcher) {
	d.Register(NewJoinHandler())
	d.Register(NewLeaveHandler())
	d.Register(NewSendHandler())
	d.Register(NewReadHandler())
	d.Register(NewTypingStartHandler())
	d.Register(NewTypingStopHandler())
	d.Register(NewPingHandler())
}

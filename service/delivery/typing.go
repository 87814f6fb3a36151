package delivery

import (
	"RentChat/logger"
	"RentChat/service/events"
)

// Signaler typing 信号纯广播，不落任何状态。
// 断线留下的"正在输入"由客户端自己的超时消化。
type Signaler struct {
	bc Broadcaster
}

func NewSignaler(bc Broadcaster) *Signaler {
	return &Signaler{bc: bc}
}

func (s *Signaler) TypingStart(conversationID, userID, exceptConnID string) {
	s.signal(conversationID, userID, exceptConnID, true)
}

func (s *Signaler) TypingStop(conversationID, userID, exceptConnID string) {
	s.signal(conversationID, userID, exceptConnID, false)
}

func (s *Signaler) signal(conversationID, userID, exceptConnID string, isTyping bool) {
	payload, err := events.Build(events.TypeUserTyping, events.UserTypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	if err != nil {
		logger.Errorf("[typing] build user.typing conv=%s: %v", conversationID, err)
		return
	}
	s.bc.ToRoomExcept(events.ConversationRoom(conversationID), exceptConnID, payload)
}

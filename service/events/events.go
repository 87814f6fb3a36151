package events

import (
	"encoding/json"
	"fmt"

	"RentChat/store"
)

// 事件名。客户端上行与服务端下行共用同一帧格式。
const (
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
	TypeMessageSend       = "message.send"
	TypeMessageNew        = "message.new"
	TypeMessageRead       = "message.read"
	TypeMessageReadUpdate = "message.read_update"
	TypeTypingStart       = "typing.start"
	TypeTypingStop        = "typing.stop"
	TypeUserTyping        = "user.typing"
	TypeNotificationNew   = "notification.new"
	TypeUnreadUpdate      = "unread.update"
	TypeError             = "error"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeConnAck           = "conn.ack"
)

// Frame 上行帧。payload 先留 map，按事件名再解到具体结构。
type Frame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return &f, nil
}

// Build 下行帧编码。编码失败属编程错误，调用方按日志处理。
func Build(eventType string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{Type: eventType, Payload: payload})
}

// ===== 上行 payload =====

type JoinPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendPayload struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	Attachment     string `json:"attachment,omitempty"`
	// TempID 客户端本地临时ID，原样回显在 message.new 里供乐观替换。
	TempID string `json:"tempId,omitempty"`
}

type ReadPayload struct {
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// ===== 下行 payload =====

type MessageNewPayload struct {
	ConversationID string         `json:"conversationId"`
	Message        *store.Message `json:"message"`
	TempID         string         `json:"tempId,omitempty"`
}

type ReadUpdatePayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	MarkedCount    int64  `json:"markedCount"`
}

type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type UnreadUpdatePayload struct {
	Messages      int64 `json:"messages"`
	Notifications int64 `json:"notifications"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// TempID 发送失败时带回，客户端据此回滚对应的乐观消息。
	TempID string `json:"tempId,omitempty"`
}

type ConnAckPayload struct {
	ConnID string `json:"connId"`
	UserID string `json:"userId"`
}

// ===== 房间键 =====

func UserRoom(userID string) string { return "user:" + userID }

func ConversationRoom(conversationID string) string { return "conversation:" + conversationID }

package store

import "context"

// Message 持久化聊天记录。创建后不可变，只有已读状态与软删标记会变化。
// UnreadBy 在写入时填“除发送者外的参与者”，MarkRead 逐个摘除；
// 未读计数永远从这里推导，不另设计数器。
type Message struct {
	ID             string           `bson:"_id" json:"id"`
	ConversationID string           `bson:"conversation_id" json:"conversationId"`
	SenderID       string           `bson:"sender_id" json:"senderId"`
	Text           string           `bson:"text" json:"text"`
	Attachment     string           `bson:"attachment,omitempty" json:"attachment,omitempty"`
	CreatedAt      int64            `bson:"created_at" json:"createdAt"` // unix ms
	UnreadBy       []string         `bson:"unread_by" json:"-"`
	ReadBy         map[string]int64 `bson:"read_by,omitempty" json:"readBy,omitempty"` // userID -> unix ms
	Deleted        bool             `bson:"deleted" json:"deleted,omitempty"`
}

// Conversation 固定参与者的会话，挂在某个房源下。
type Conversation struct {
	ID            string   `bson:"_id" json:"id"`
	PropertyID    string   `bson:"property_id" json:"propertyId"`
	Participants  []string `bson:"participants" json:"participants"`
	LastMessageAt int64    `bson:"last_message_at" json:"lastMessageAt"`
	LastPreview   string   `bson:"last_preview" json:"lastPreview"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

type User struct {
	ID           string `bson:"_id" json:"id"`
	Name         string `bson:"name" json:"name"`
	Avatar       string `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Phone        string `bson:"phone,omitempty" json:"-"`
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`
	Blocked      bool   `bson:"blocked" json:"-"`
}

type Notification struct {
	ID             string `bson:"_id" json:"id"`
	RecipientID    string `bson:"recipient_id" json:"recipientId"`
	SenderID       string `bson:"sender_id" json:"senderId"`
	SenderName     string `bson:"sender_name" json:"senderName"`
	ConversationID string `bson:"conversation_id" json:"conversationId"`
	Preview        string `bson:"preview" json:"preview"`
	CreatedAt      int64  `bson:"created_at" json:"createdAt"`
	Read           bool   `bson:"read" json:"read"`
}

// ConversationStore 会话查询/更新。
type ConversationStore interface {
	FindConversation(ctx context.Context, id string) (*Conversation, error)
	// TouchConversation 写入最新一条消息的时间与预览。
	TouchConversation(ctx context.Context, id string, at int64, preview string) error
}

// MessageStore 消息写入与已读状态。
type MessageStore interface {
	InsertMessage(ctx context.Context, m *Message) error
	// ListMessages 按 CreatedAt 升序返回 before（unix ms，0 表示现在）之前的
	// 最后 limit 条，重连后客户端靠它补洞。
	ListMessages(ctx context.Context, conversationID string, limit int64, before int64) ([]*Message, error)
	// MarkRead 把会话内所有“user 未读且非 user 所发”的消息标记已读，
	// 返回实际标记条数。重复调用返回 0。
	MarkRead(ctx context.Context, conversationID, userID string, at int64) (int64, error)
	CountUnreadMessages(ctx context.Context, userID string) (int64, error)
	CountUnreadInConversation(ctx context.Context, conversationID, userID string) (int64, error)
	// SoftDeleteMessage 仅发送者可删。
	SoftDeleteMessage(ctx context.Context, messageID, senderID string) error
}

// UserStore 用户查询与安全敏感变更。
type UserStore interface {
	FindUser(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdatePhone(ctx context.Context, userID, phone string) error
	DeleteUser(ctx context.Context, userID string) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
}

// Store 聚合接口，网关各组件只依赖需要的子集。
type Store interface {
	ConversationStore
	MessageStore
	UserStore
	NotificationStore
}

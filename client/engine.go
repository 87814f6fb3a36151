package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"RentChat/logger"
	"RentChat/resilience"
	"RentChat/service/events"
	"RentChat/tools/decode"

	"github.com/google/uuid"
)

// Sender 把一条 message.send 写上行通道。Transport 满足该接口。
type Sender interface {
	SendMessage(ctx context.Context, conversationID, text, attachment, tempID string) error
}

// MessageView 客户端侧的消息视图。Provisional 表示乐观插入、
// 还没等到服务端 message.new 确认。
type MessageView struct {
	ID             string
	TempID         string
	ConversationID string
	SenderID       string
	Text           string
	Attachment     string
	CreatedAt      int64
	Provisional    bool
}

// ConversationView 会话视图，按最近活动排序展示。
type ConversationView struct {
	ID           string
	LastActivity int64
	Preview      string
}

// Badge 角标。唯一数据源是服务端的 unread.update，本地从不自行累加。
type Badge struct {
	Messages      int64
	Notifications int64
}

// Engine 客户端状态机：乐观插入、tempId 对账替换、失败回滚、
// 会话排序与角标。所有 Apply* 由收帧循环调用，Send 由 UI 调用。
type Engine struct {
	mu     sync.Mutex
	userID string
	sender Sender
	retry  resilience.Policy

	active  string                    // 当前打开的会话，Select 切换
	msgs    map[string][]*MessageView // conversationID -> 有序消息
	seen    map[string]bool           // 服务端消息ID去重
	convs   map[string]*ConversationView
	badge   Badge
	typing  map[string]map[string]bool // conversationID -> 正在输入的用户
	breaker *resilience.Breaker        // 可为 nil
	nowFn   func() int64
	tempGen func() string
}

func NewEngine(userID string, sender Sender, retry resilience.Policy) *Engine {
	return &Engine{
		userID:  userID,
		sender:  sender,
		retry:   retry,
		msgs:    make(map[string][]*MessageView),
		seen:    make(map[string]bool),
		convs:   make(map[string]*ConversationView),
		typing:  make(map[string]map[string]bool),
		nowFn:   func() int64 { return time.Now().UnixMilli() },
		tempGen: uuid.NewString,
	}
}

// UseBreaker 给上行挂熔断器（message_send 类）。nil 表示不熔断。
func (e *Engine) UseBreaker(b *resilience.Breaker) { e.breaker = b }

// Select 切换当前会话。只有当前会话维护完整消息列表，
// 其余会话只动列表项（预览/未读）；切入后用 ApplyHistory 补齐消息。
func (e *Engine) Select(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = conversationID
}

// Active 当前打开的会话，空串表示没有。
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Send 乐观插入一条临时消息并走重试引擎上行。
// 重试耗尽或命中不可重试错误时移除临时消息并返回错误。
func (e *Engine) Send(ctx context.Context, conversationID, text, attachment string) (string, error) {
	tempID := e.tempGen()

	e.mu.Lock()
	mv := &MessageView{
		TempID:         tempID,
		ConversationID: conversationID,
		SenderID:       e.userID,
		Text:           text,
		Attachment:     attachment,
		CreatedAt:      e.nowFn(),
		Provisional:    true,
	}
	e.msgs[conversationID] = append(e.msgs[conversationID], mv)
	e.touchLocked(conversationID, mv.CreatedAt, text)
	e.mu.Unlock()

	op := func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			return e.sender.SendMessage(ctx, conversationID, text, attachment, tempID)
		}, e.retry)
	}
	var err error
	if e.breaker != nil {
		err = e.breaker.Do(op)
	} else {
		err = op()
	}
	if err != nil {
		e.Rollback(tempID)
		return tempID, err
	}
	return tempID, nil
}

// Rollback 移除对应的临时消息。失败的发送不留幽灵气泡，
// 由 UI 层拿着返回的错误提示重发。
func (e *Engine) Rollback(tempID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for conv, list := range e.msgs {
		for i, m := range list {
			if m.TempID == tempID && m.Provisional {
				e.msgs[conv] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// OnFrame 收帧入口，按事件名分发。未知事件忽略，新服务端旧客户端共存。
func (e *Engine) OnFrame(f *events.Frame) {
	switch f.Type {
	case events.TypeMessageNew:
		p, err := decode.DecodeMap[messageNewView](f.Payload)
		if err != nil {
			logger.Errorf("[client] decode message.new: %v", err)
			return
		}
		e.applyMessageNew(p)
	case events.TypeUnreadUpdate:
		p, err := decode.DecodeMap[events.UnreadUpdatePayload](f.Payload)
		if err != nil {
			logger.Errorf("[client] decode unread.update: %v", err)
			return
		}
		e.applyUnread(p)
	case events.TypeUserTyping:
		p, err := decode.DecodeMap[events.UserTypingPayload](f.Payload)
		if err != nil {
			logger.Errorf("[client] decode user.typing: %v", err)
			return
		}
		e.applyTyping(p)
	case events.TypeError:
		p, err := decode.DecodeMap[events.ErrorPayload](f.Payload)
		if err != nil {
			logger.Errorf("[client] decode error frame: %v", err)
			return
		}
		if p.TempID != "" {
			e.Rollback(p.TempID)
		}
	}
}

// messageNewView message.new 的扁平视图，消息体展开成字段。
type messageNewView struct {
	ConversationID string `json:"conversationId"`
	TempID         string `json:"tempId"`
	Message        struct {
		ID        string `json:"id"`
		SenderID  string `json:"senderId"`
		Text      string `json:"text"`
		Atch      string `json:"attachment"`
		CreatedAt int64  `json:"createdAt"`
	} `json:"message"`
}

func (e *Engine) applyMessageNew(p *messageNewView) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seen[p.Message.ID] {
		return // 重复投递（重连补发等），丢弃
	}

	// 自己发的：按 tempId 替换乐观插入的那条
	if p.TempID != "" && p.Message.SenderID == e.userID {
		for _, m := range e.msgs[p.ConversationID] {
			if m.TempID == p.TempID && m.Provisional {
				e.seen[p.Message.ID] = true
				m.ID = p.Message.ID
				m.CreatedAt = p.Message.CreatedAt
				m.Provisional = false
				e.touchLocked(p.ConversationID, p.Message.CreatedAt, p.Message.Text)
				return
			}
		}
	}

	// 非当前会话只更新列表项。消息不标 seen：
	// 切入后 ApplyHistory 还要补进来。
	if p.ConversationID != e.active {
		e.touchLocked(p.ConversationID, p.Message.CreatedAt, p.Message.Text)
		return
	}

	e.seen[p.Message.ID] = true
	mv := &MessageView{
		ID:             p.Message.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.Message.SenderID,
		Text:           p.Message.Text,
		Attachment:     p.Message.Atch,
		CreatedAt:      p.Message.CreatedAt,
	}
	e.msgs[p.ConversationID] = append(e.msgs[p.ConversationID], mv)
	e.touchLocked(p.ConversationID, p.Message.CreatedAt, p.Message.Text)
}

// HistoryItem 历史接口返回的一条消息（REST /conversations/:id/messages）。
type HistoryItem struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	Atch      string `json:"attachment"`
	CreatedAt int64  `json:"createdAt"`
}

// ApplyHistory 重连后回填历史：已有的按ID去重，缺的补进来。
// 排序交给 Messages 的读路径。
func (e *Engine) ApplyHistory(conversationID string, items []HistoryItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, it := range items {
		if e.seen[it.ID] {
			continue
		}
		e.seen[it.ID] = true
		e.msgs[conversationID] = append(e.msgs[conversationID], &MessageView{
			ID:             it.ID,
			ConversationID: conversationID,
			SenderID:       it.SenderID,
			Text:           it.Text,
			Attachment:     it.Atch,
			CreatedAt:      it.CreatedAt,
		})
		e.touchLocked(conversationID, it.CreatedAt, it.Text)
	}
}

func (e *Engine) applyUnread(p *events.UnreadUpdatePayload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.badge = Badge{Messages: p.Messages, Notifications: p.Notifications}
}

func (e *Engine) applyTyping(p *events.UserTypingPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := e.typing[p.ConversationID]
	if set == nil {
		set = make(map[string]bool)
		e.typing[p.ConversationID] = set
	}
	if p.IsTyping {
		set[p.UserID] = true
	} else {
		delete(set, p.UserID)
	}
}

func (e *Engine) touchLocked(conversationID string, at int64, preview string) {
	c := e.convs[conversationID]
	if c == nil {
		c = &ConversationView{ID: conversationID}
		e.convs[conversationID] = c
	}
	if at >= c.LastActivity {
		c.LastActivity = at
		c.Preview = preview
	}
}

// ===== 读视图（全部返回副本） =====

// Messages 会话内消息，按时间升序，时间相同按服务端ID定序。
func (e *Engine) Messages(conversationID string) []MessageView {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.msgs[conversationID]
	out := make([]MessageView, len(list))
	for i, m := range list {
		out[i] = *m
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Conversations 按最近活动降序。
func (e *Engine) Conversations() []ConversationView {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ConversationView, 0, len(e.convs))
	for _, c := range e.convs {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) Badge() Badge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.badge
}

// TypingUsers 会话内正在输入的用户。
func (e *Engine) TypingUsers(conversationID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for uid := range e.typing[conversationID] {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

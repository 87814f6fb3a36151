package store

import (
	"context"
	"sort"
	"sync"

	"RentChat/tools/errs"
)

// Memory 内存实现：单测与本地开发用，语义与 Mongo 实现保持一致。
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      []*Message // 插入序即持久化序
	users         map[string]*User
	notifications []*Notification
}

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*Conversation),
		users:         make(map[string]*User),
	}
}

// ===== 种子数据（dev 模式 / 单测） =====

func (s *Memory) SeedUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Memory) SeedConversation(c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
}

// ===== ConversationStore =====

func (s *Memory) FindConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("conversation " + id)
	}
	cp := *c
	return &cp, nil
}

func (s *Memory) TouchConversation(_ context.Context, id string, at int64, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return errs.ErrNotFound.WithDetail("conversation " + id)
	}
	if at > c.LastMessageAt {
		c.LastMessageAt = at
		c.LastPreview = preview
	}
	return nil
}

// ===== MessageStore =====

func (s *Memory) InsertMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *Memory) ListMessages(_ context.Context, conversationID string, limit int64, before int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.Deleted {
			continue
		}
		if before > 0 && m.CreatedAt >= before {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (s *Memory) MarkRead(_ context.Context, conversationID, userID string, at int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked int64
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.SenderID == userID || m.Deleted {
			continue
		}
		if !removeString(&m.UnreadBy, userID) {
			continue
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[string]int64)
		}
		m.ReadBy[userID] = at
		marked++
	}
	return marked, nil
}

func (s *Memory) CountUnreadMessages(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if !m.Deleted && containsString(m.UnreadBy, userID) {
			n++
		}
	}
	return n, nil
}

func (s *Memory) CountUnreadInConversation(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && !m.Deleted && containsString(m.UnreadBy, userID) {
			n++
		}
	}
	return n, nil
}

func (s *Memory) SoftDeleteMessage(_ context.Context, messageID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID != messageID {
			continue
		}
		if m.SenderID != senderID {
			return errs.ErrForbidden.WithDetail("only the sender may delete a message")
		}
		m.Deleted = true
		return nil
	}
	return errs.ErrNotFound.WithDetail("message " + messageID)
}

// ===== UserStore =====

func (s *Memory) FindUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound.WithDetail("user " + id)
	}
	cp := *u
	return &cp, nil
}

func (s *Memory) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errs.ErrNotFound.WithDetail("user " + userID)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *Memory) UpdatePhone(_ context.Context, userID, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errs.ErrNotFound.WithDetail("user " + userID)
	}
	u.Phone = phone
	return nil
}

func (s *Memory) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return errs.ErrNotFound.WithDetail("user " + userID)
	}
	delete(s.users, userID)
	return nil
}

// ===== NotificationStore =====

func (s *Memory) CreateNotification(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *Memory) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, v := range s.notifications {
		if v.RecipientID == userID && !v.Read {
			n++
		}
	}
	return n, nil
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(ss *[]string, v string) bool {
	for i, s := range *ss {
		if s == v {
			*ss = append((*ss)[:i], (*ss)[i+1:]...)
			return true
		}
	}
	return false
}

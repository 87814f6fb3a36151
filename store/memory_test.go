package store

import (
	"context"
	"testing"
)

func seedTwoPartyConversation(s *Memory) *Conversation {
	s.SeedUser(&User{ID: "renter-1", Name: "Ada"})
	s.SeedUser(&User{ID: "owner-1", Name: "Bo"})
	c := &Conversation{
		ID:           "conv-1",
		PropertyID:   "prop-9",
		Participants: []string{"renter-1", "owner-1"},
	}
	s.SeedConversation(c)
	return c
}

func insertTestMessage(t *testing.T, s *Memory, id, conv, sender string, at int64, unreadBy ...string) {
	t.Helper()
	err := s.InsertMessage(context.Background(), &Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Text:           "m-" + id,
		CreatedAt:      at,
		UnreadBy:       unreadBy,
	})
	if err != nil {
		t.Fatalf("InsertMessage(%s) error: %v", id, err)
	}
}

func TestMemory_MarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedTwoPartyConversation(s)

	insertTestMessage(t, s, "m1", "conv-1", "renter-1", 100, "owner-1")
	insertTestMessage(t, s, "m2", "conv-1", "renter-1", 200, "owner-1")

	marked, err := s.MarkRead(ctx, "conv-1", "owner-1", 300)
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if marked != 2 {
		t.Errorf("MarkRead() first call = %d, want 2", marked)
	}

	marked, err = s.MarkRead(ctx, "conv-1", "owner-1", 301)
	if err != nil {
		t.Fatalf("MarkRead() second call error: %v", err)
	}
	if marked != 0 {
		t.Errorf("MarkRead() second call = %d, want 0", marked)
	}

	n, _ := s.CountUnreadMessages(ctx, "owner-1")
	if n != 0 {
		t.Errorf("CountUnreadMessages() = %d, want 0", n)
	}
}

func TestMemory_MarkReadSkipsOwnMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedTwoPartyConversation(s)

	insertTestMessage(t, s, "m1", "conv-1", "renter-1", 100, "owner-1")
	insertTestMessage(t, s, "m2", "conv-1", "owner-1", 150, "renter-1")

	marked, err := s.MarkRead(ctx, "conv-1", "owner-1", 200)
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if marked != 1 {
		t.Errorf("MarkRead() = %d, want 1 (own message untouched)", marked)
	}
	n, _ := s.CountUnreadMessages(ctx, "renter-1")
	if n != 1 {
		t.Errorf("renter unread = %d, want 1", n)
	}
}

func TestMemory_UnreadCountMatchesPersistedState(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedTwoPartyConversation(s)
	s.SeedConversation(&Conversation{
		ID:           "conv-2",
		Participants: []string{"renter-1", "owner-1"},
	})

	insertTestMessage(t, s, "m1", "conv-1", "renter-1", 100, "owner-1")
	insertTestMessage(t, s, "m2", "conv-1", "renter-1", 200, "owner-1")
	insertTestMessage(t, s, "m3", "conv-2", "renter-1", 300, "owner-1")

	total, _ := s.CountUnreadMessages(ctx, "owner-1")
	in1, _ := s.CountUnreadInConversation(ctx, "conv-1", "owner-1")
	in2, _ := s.CountUnreadInConversation(ctx, "conv-2", "owner-1")
	if total != in1+in2 {
		t.Errorf("total unread %d != per-conversation sum %d", total, in1+in2)
	}
	if total != 3 {
		t.Errorf("total unread = %d, want 3", total)
	}

	if _, err := s.MarkRead(ctx, "conv-1", "owner-1", 400); err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	total, _ = s.CountUnreadMessages(ctx, "owner-1")
	if total != 1 {
		t.Errorf("total unread after read = %d, want 1", total)
	}
}

func TestMemory_ListMessagesOrderAndWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedTwoPartyConversation(s)

	// 乱序写入 + 相同时间戳靠ID决胜
	insertTestMessage(t, s, "m3", "conv-1", "renter-1", 300)
	insertTestMessage(t, s, "m1", "conv-1", "renter-1", 100)
	insertTestMessage(t, s, "m2a", "conv-1", "owner-1", 200)
	insertTestMessage(t, s, "m2b", "conv-1", "renter-1", 200)

	msgs, err := s.ListMessages(ctx, "conv-1", 0, 0)
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	wantOrder := []string{"m1", "m2a", "m2b", "m3"}
	if len(msgs) != len(wantOrder) {
		t.Fatalf("ListMessages() count = %d, want %d", len(msgs), len(wantOrder))
	}
	for i, w := range wantOrder {
		if msgs[i].ID != w {
			t.Errorf("ListMessages()[%d] = %s, want %s", i, msgs[i].ID, w)
		}
	}

	// limit 取最后两条
	msgs, _ = s.ListMessages(ctx, "conv-1", 2, 0)
	if len(msgs) != 2 || msgs[0].ID != "m2b" || msgs[1].ID != "m3" {
		t.Errorf("ListMessages(limit=2) = %v, want last two in order", ids(msgs))
	}

	// before 窗口
	msgs, _ = s.ListMessages(ctx, "conv-1", 0, 200)
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("ListMessages(before=200) = %v, want [m1]", ids(msgs))
	}
}

func TestMemory_SoftDeleteOnlyBySender(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	seedTwoPartyConversation(s)
	insertTestMessage(t, s, "m1", "conv-1", "renter-1", 100, "owner-1")

	if err := s.SoftDeleteMessage(ctx, "m1", "owner-1"); err == nil {
		t.Error("SoftDeleteMessage() by non-sender should fail")
	}
	if err := s.SoftDeleteMessage(ctx, "m1", "renter-1"); err != nil {
		t.Fatalf("SoftDeleteMessage() by sender error: %v", err)
	}

	msgs, _ := s.ListMessages(ctx, "conv-1", 0, 0)
	if len(msgs) != 0 {
		t.Errorf("deleted message still listed: %v", ids(msgs))
	}
	n, _ := s.CountUnreadMessages(ctx, "owner-1")
	if n != 0 {
		t.Errorf("deleted message still counted unread: %d", n)
	}
}

func ids(msgs []*Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

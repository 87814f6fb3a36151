package delivery

import (
	"context"
	"testing"

	"RentChat/service/events"
)

func TestAggregator_MarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	p, _, bc := newTestPipeline(t)
	agg := p.unread

	for i := 0; i < 3; i++ {
		if _, err := p.Send(ctx, "conv-1", "renter-1", "hi", "", ""); err != nil {
			t.Fatalf("seed send %d: %v", i, err)
		}
	}

	marked, err := agg.MarkRead(ctx, "conv-1", "owner-1")
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if marked != 3 {
		t.Errorf("first MarkRead() = %d, want 3", marked)
	}

	marked, err = agg.MarkRead(ctx, "conv-1", "owner-1")
	if err != nil {
		t.Fatalf("second MarkRead() error: %v", err)
	}
	if marked != 0 {
		t.Errorf("second MarkRead() = %d, want 0", marked)
	}

	// 回执只广播一次（第二次 marked==0 不广播）
	if n := bc.byType(events.ConversationRoom("conv-1"), events.TypeMessageReadUpdate); len(n) != 1 {
		t.Errorf("read_update broadcasts = %d, want 1", len(n))
	}
}

func TestAggregator_MarkReadSkipsOwnMessages(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPipeline(t)
	agg := p.unread

	if _, err := p.Send(ctx, "conv-1", "renter-1", "mine", "", ""); err != nil {
		t.Fatal(err)
	}
	marked, err := agg.MarkRead(ctx, "conv-1", "renter-1")
	if err != nil {
		t.Fatal(err)
	}
	if marked != 0 {
		t.Errorf("MarkRead() on own messages = %d, want 0", marked)
	}
}

func TestAggregator_PushRecomputesFromStore(t *testing.T) {
	ctx := context.Background()
	p, _, bc := newTestPipeline(t)
	agg := p.unread

	for i := 0; i < 2; i++ {
		if _, err := p.Send(ctx, "conv-1", "renter-1", "hi", "", ""); err != nil {
			t.Fatal(err)
		}
	}
	agg.Push(ctx, "owner-1")

	updates := bc.byType(events.UserRoom("owner-1"), events.TypeUnreadUpdate)
	if len(updates) == 0 {
		t.Fatal("no unread.update broadcast")
	}
	last := updates[len(updates)-1]
	if got, _ := last.Payload["messages"].(float64); got != 2 {
		t.Errorf("unread.update messages = %v, want 2", last.Payload["messages"])
	}
	if got, _ := last.Payload["notifications"].(float64); got != 2 {
		t.Errorf("unread.update notifications = %v, want 2", last.Payload["notifications"])
	}
}

// 端到端场景：A 发 "hello"，B 收到 message.new 且角标 +1，
// B 标记已读后 A 所在的会话房间收到回执，B 角标归零。
func TestDelivery_SendThenReadScenario(t *testing.T) {
	ctx := context.Background()
	p, _, bc := newTestPipeline(t)
	agg := p.unread

	msg, err := p.Send(ctx, "conv-1", "renter-1", "hello", "", "tmp-7")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	news := bc.byType(events.ConversationRoom("conv-1"), events.TypeMessageNew)
	if len(news) != 1 {
		t.Fatalf("message.new = %d, want 1", len(news))
	}

	if n, _ := agg.UnreadMessageCount(ctx, "owner-1"); n != 1 {
		t.Errorf("owner unread after send = %d, want 1", n)
	}

	marked, err := agg.MarkRead(ctx, "conv-1", "owner-1")
	if err != nil {
		t.Fatal(err)
	}
	if marked != 1 {
		t.Errorf("MarkRead() = %d, want 1", marked)
	}

	receipts := bc.byType(events.ConversationRoom("conv-1"), events.TypeMessageReadUpdate)
	if len(receipts) != 1 {
		t.Fatalf("read_update = %d, want 1", len(receipts))
	}
	if uid, _ := receipts[0].Payload["userId"].(string); uid != "owner-1" {
		t.Errorf("read_update userId = %q, want owner-1", uid)
	}

	if n, _ := agg.UnreadMessageCount(ctx, "owner-1"); n != 0 {
		t.Errorf("owner unread after markRead = %d, want 0", n)
	}

	// 发送方的消息状态不受影响
	if n, _ := agg.UnreadMessageCount(ctx, "renter-1"); n != 0 {
		t.Errorf("sender unread = %d, want 0", n)
	}
	_ = msg
}

func TestSignaler_ExcludesOriginator(t *testing.T) {
	bc := newFakeBroadcaster()
	sig := NewSignaler(bc)

	sig.TypingStart("conv-1", "renter-1", "conn-renter")
	sig.TypingStop("conv-1", "renter-1", "conn-renter")

	frames := bc.byType(events.ConversationRoom("conv-1"), events.TypeUserTyping)
	if len(frames) != 2 {
		t.Fatalf("user.typing frames = %d, want 2", len(frames))
	}
	if v, _ := frames[0].Payload["isTyping"].(bool); !v {
		t.Error("first frame isTyping = false, want true")
	}
	if v, _ := frames[1].Payload["isTyping"].(bool); v {
		t.Error("second frame isTyping = true, want false")
	}
}

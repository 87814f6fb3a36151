package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"RentChat/resilience"
	"RentChat/service/chat"
	"RentChat/service/delivery"
	"RentChat/service/events"
	"RentChat/store"
	"RentChat/tools/security"
)

// testRig 不起真实 socket：连接用裸 Conn 注册进房间表，
// 帧直接打进 Dispatcher，下行从 send 队列里捞。
type testRig struct {
	server *chat.Server
	disp   *chat.Dispatcher
	rooms  *chat.RoomTable
	mem    *store.Memory
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedUser(&store.User{ID: "renter-1", Name: "Ada"})
	mem.SeedUser(&store.User{ID: "owner-1", Name: "Bo"})
	mem.SeedUser(&store.User{ID: "outsider", Name: "Eve"})
	mem.SeedConversation(&store.Conversation{
		ID:           "conv-1",
		Participants: []string{"renter-1", "owner-1"},
	})

	rooms := chat.NewRoomTable()
	unread := delivery.NewAggregator(mem, rooms)
	pipeline := delivery.NewPipeline(mem, rooms, unread)
	typing := delivery.NewSignaler(rooms)
	disp := chat.NewDispatcher()
	breakers := resilience.NewRegistry(nil, resilience.BreakerConf{
		FailureThreshold: 3, ResetTimeout: 30 * time.Second,
	})

	server := chat.NewServer(chat.Conf{JWT: security.DefaultOptions([]byte("test-secret"))},
		mem, rooms, disp, pipeline, unread, typing, breakers, nil)
	RegisterAll(disp)
	return &testRig{server: server, disp: disp, rooms: rooms, mem: mem}
}

// connect 模拟一条握手完成的连接：登记 + 自动进个人房间。
func (r *testRig) connect(connID, userID string) *chat.Conn {
	c := chat.NewTestConn(connID, userID)
	r.rooms.Register(c)
	r.rooms.Join(events.UserRoom(userID), connID)
	return c
}

func (r *testRig) dispatch(c *chat.Conn, eventType string, payload map[string]any) {
	r.disp.Dispatch(&chat.Context{S: r.server, Conn: c}, &events.Frame{Type: eventType, Payload: payload})
}

func frames(t *testing.T, c *chat.Conn) []*events.Frame {
	t.Helper()
	var out []*events.Frame
	for _, raw := range chat.DrainTestConn(c) {
		var f events.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame %q: %v", raw, err)
		}
		out = append(out, &f)
	}
	return out
}

func lastOfType(fs []*events.Frame, eventType string) *events.Frame {
	for i := len(fs) - 1; i >= 0; i-- {
		if fs[i].Type == eventType {
			return fs[i]
		}
	}
	return nil
}

func TestJoin_ParticipantAllowedOutsiderRejected(t *testing.T) {
	rig := newRig(t)
	renter := rig.connect("conn-r", "renter-1")
	out := rig.connect("conn-o", "outsider")

	rig.dispatch(renter, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})
	if !rig.rooms.InRoom(events.ConversationRoom("conv-1"), "conn-r") {
		t.Error("participant not admitted to conversation room")
	}

	rig.dispatch(out, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})
	if rig.rooms.InRoom(events.ConversationRoom("conv-1"), "conn-o") {
		t.Error("outsider admitted to conversation room")
	}
	errFrame := lastOfType(frames(t, out), events.TypeError)
	if errFrame == nil {
		t.Fatal("outsider got no error frame")
	}
	if code, _ := errFrame.Payload["code"].(float64); int(code) != 1103 {
		t.Errorf("error code = %v, want 1103 (forbidden)", errFrame.Payload["code"])
	}
}

// 完整场景：A 发 "hello"，B 收到 message.new 且角标推送到个人房间；
// B 标已读后会话房间收到回执。
func TestSendReadRoundTrip(t *testing.T) {
	rig := newRig(t)
	renter := rig.connect("conn-r", "renter-1")
	owner := rig.connect("conn-o", "owner-1")
	rig.dispatch(renter, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})
	rig.dispatch(owner, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})

	rig.dispatch(renter, events.TypeMessageSend, map[string]any{
		"conversationId": "conv-1",
		"text":           "hello",
		"tempId":         "tmp-1",
	})

	ownerFrames := frames(t, owner)
	msgNew := lastOfType(ownerFrames, events.TypeMessageNew)
	if msgNew == nil {
		t.Fatal("owner did not receive message.new")
	}
	if tempID, _ := msgNew.Payload["tempId"].(string); tempID != "tmp-1" {
		t.Errorf("tempId = %q, want tmp-1", tempID)
	}
	unread := lastOfType(ownerFrames, events.TypeUnreadUpdate)
	if unread == nil {
		t.Fatal("owner did not receive unread.update")
	}
	if n, _ := unread.Payload["messages"].(float64); n != 1 {
		t.Errorf("unread messages = %v, want 1", n)
	}

	rig.dispatch(owner, events.TypeMessageRead, map[string]any{"conversationId": "conv-1"})
	receipt := lastOfType(frames(t, renter), events.TypeMessageReadUpdate)
	if receipt == nil {
		t.Fatal("sender did not receive read_update")
	}
	if uid, _ := receipt.Payload["userId"].(string); uid != "owner-1" {
		t.Errorf("read_update userId = %q, want owner-1", uid)
	}
}

func TestSend_EmptyMessageRejectedWithTempID(t *testing.T) {
	rig := newRig(t)
	renter := rig.connect("conn-r", "renter-1")
	rig.dispatch(renter, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})

	rig.dispatch(renter, events.TypeMessageSend, map[string]any{
		"conversationId": "conv-1",
		"text":           "   ",
		"tempId":         "tmp-9",
	})
	errFrame := lastOfType(frames(t, renter), events.TypeError)
	if errFrame == nil {
		t.Fatal("empty send got no error frame")
	}
	if tempID, _ := errFrame.Payload["tempId"].(string); tempID != "tmp-9" {
		t.Errorf("error tempId = %q, want tmp-9", tempID)
	}
}

func TestTyping_RelayedExceptOriginatorAndGatedByRoom(t *testing.T) {
	rig := newRig(t)
	renter := rig.connect("conn-r", "renter-1")
	owner := rig.connect("conn-o", "owner-1")
	rig.dispatch(renter, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})
	rig.dispatch(owner, events.TypeJoinConversation, map[string]any{"conversationId": "conv-1"})

	rig.dispatch(renter, events.TypeTypingStart, map[string]any{"conversationId": "conv-1"})

	if f := lastOfType(frames(t, owner), events.TypeUserTyping); f == nil {
		t.Error("peer did not receive user.typing")
	}
	if f := lastOfType(frames(t, renter), events.TypeUserTyping); f != nil {
		t.Error("originator received own typing signal")
	}

	// 没进房的连接发 typing 被静默忽略
	stray := rig.connect("conn-s", "owner-1")
	rig.dispatch(stray, events.TypeTypingStop, map[string]any{"conversationId": "conv-1"})
	if f := lastOfType(frames(t, stray), events.TypeError); f != nil {
		t.Error("room-gated typing should be ignored, not errored")
	}
}

func TestDispatch_UnknownEventRepliesError(t *testing.T) {
	rig := newRig(t)
	renter := rig.connect("conn-r", "renter-1")

	rig.dispatch(renter, "message.unknown", map[string]any{})
	if f := lastOfType(frames(t, renter), events.TypeError); f == nil {
		t.Fatal("unknown event got no error frame")
	}
}

func TestPing_RepliesPong(t *testing.T) {
	rig := newRig(t)
	renter := rig.connect("conn-r", "renter-1")

	rig.dispatch(renter, events.TypePing, nil)
	if f := lastOfType(frames(t, renter), events.TypePong); f == nil {
		t.Fatal("ping got no pong")
	}
}

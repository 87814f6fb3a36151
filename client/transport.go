package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"RentChat/logger"
	"RentChat/service/events"
	"RentChat/tools/errs"
	"RentChat/tools/safe"

	"github.com/gorilla/websocket"
)

// Transport WebSocket 上行通道。写加锁串行化，读循环把下行帧
// 交给 Engine.OnFrame。
type Transport struct {
	mu sync.Mutex
	ws *websocket.Conn

	onFrame func(*events.Frame)
	done    chan struct{}
	once    sync.Once
}

type DialConf struct {
	URL     string // ws://host:port/ws
	Token   string
	Timeout time.Duration
}

// Dial 握手并启动收帧循环。onFrame 通常传 engine.OnFrame。
func Dial(ctx context.Context, conf DialConf, onFrame func(*events.Frame)) (*Transport, error) {
	u, err := url.Parse(conf.URL)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg(err, "parse ws url")
	}
	q := u.Query()
	q.Set("token", conf.Token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: conf.Timeout}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errs.ErrNetwork.WrapMsg(err, "ws dial")
	}

	t := &Transport{ws: ws, onFrame: onFrame, done: make(chan struct{})}
	safe.SafeGo(t.readLoop)
	return t, nil
}

func (t *Transport) readLoop() {
	defer t.Close()
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			logger.Infof("[client] read loop ended: %v", err)
			return
		}
		f, perr := events.ParseFrame(data)
		if perr != nil {
			logger.Debugf("[client] bad frame: %v", perr)
			continue
		}
		if t.onFrame != nil {
			t.onFrame(f)
		}
	}
}

func (t *Transport) writeFrame(eventType string, payload any) error {
	raw, err := events.Build(eventType, payload)
	if err != nil {
		return errs.ErrValidation.WrapMsg(err, "build frame")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return errs.ErrNetwork.WrapMsg(err, "set deadline")
	}
	if err := t.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return errs.ErrNetwork.WrapMsg(err, "write frame")
	}
	return nil
}

// SendMessage 实现 Sender。
func (t *Transport) SendMessage(_ context.Context, conversationID, text, attachment, tempID string) error {
	return t.writeFrame(events.TypeMessageSend, events.SendPayload{
		ConversationID: conversationID,
		Text:           text,
		Attachment:     attachment,
		TempID:         tempID,
	})
}

func (t *Transport) Join(conversationID string) error {
	return t.writeFrame(events.TypeJoinConversation, events.JoinPayload{ConversationID: conversationID})
}

func (t *Transport) Leave(conversationID string) error {
	return t.writeFrame(events.TypeLeaveConversation, events.JoinPayload{ConversationID: conversationID})
}

func (t *Transport) MarkRead(conversationID string) error {
	return t.writeFrame(events.TypeMessageRead, events.ReadPayload{ConversationID: conversationID})
}

func (t *Transport) TypingStart(conversationID string) error {
	return t.writeFrame(events.TypeTypingStart, events.TypingPayload{ConversationID: conversationID})
}

func (t *Transport) TypingStop(conversationID string) error {
	return t.writeFrame(events.TypeTypingStop, events.TypingPayload{ConversationID: conversationID})
}

func (t *Transport) Ping() error {
	return t.writeFrame(events.TypePing, nil)
}

func (t *Transport) Close() {
	t.once.Do(func() {
		close(t.done)
		_ = t.ws.Close()
	})
}

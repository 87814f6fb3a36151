package chat

import (
	"sync"
	"time"

	"RentChat/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	sendQueueSize  = 256
	maxMessageSize = 64 << 10
)

// Conn 一条已授权的 WebSocket 连接。写全部走 send 队列，
// 读循环只读；谁也不直接碰对方的 socket。
type Conn struct {
	ID     string // 雪花ID，conn.ack 里回给客户端
	UserID string

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id, userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:     id,
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue 非阻塞入队。队列满说明客户端读不过来，丢帧并返回 false，
// 角标类事件丢了下一次重算会补上。
func (c *Conn) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		logger.Warnf("[conn] send queue full, drop frame conn=%s user=%s", c.ID, c.UserID)
		return false
	}
}

// close 幂等关闭：停写协程并断开 socket。
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// writePump 唯一的写协程：send 队列 + 周期 ping。
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeText(payload); err != nil {
				logger.Debugf("[conn] write err conn=%s user=%s: %v", c.ID, c.UserID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeText(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

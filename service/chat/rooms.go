package chat

import (
	"sync"

	"RentChat/logger"
)

// RoomTable 房间表：room -> 连接集合，外加反向索引方便断线时批量退房。
// 同时实现 delivery.Broadcaster，投递流水线只认接口不认实现。
type RoomTable struct {
	mu     sync.RWMutex
	conns  map[string]*Conn            // connID -> conn
	rooms  map[string]map[string]*Conn // room -> (connID -> conn)
	joined map[string]map[string]bool  // connID -> room 集合
}

func NewRoomTable() *RoomTable {
	return &RoomTable{
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]*Conn),
		joined: make(map[string]map[string]bool),
	}
}

// Register 登记连接。同一 connID 重复登记属编程错误，直接覆盖并记日志。
func (t *RoomTable) Register(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.conns[c.ID]; exists {
		logger.Warnf("[rooms] duplicate conn id %s, overwriting", c.ID)
	}
	t.conns[c.ID] = c
	t.joined[c.ID] = make(map[string]bool)
}

// Unregister 注销连接：退出全部房间并关闭。断线唯一出口。
func (t *RoomTable) Unregister(connID string) {
	t.mu.Lock()
	c := t.conns[connID]
	for room := range t.joined[connID] {
		t.leaveLocked(room, connID)
	}
	delete(t.joined, connID)
	delete(t.conns, connID)
	t.mu.Unlock()

	if c != nil {
		c.close()
	}
}

func (t *RoomTable) Join(room, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return
	}
	if t.rooms[room] == nil {
		t.rooms[room] = make(map[string]*Conn)
	}
	t.rooms[room][connID] = c
	t.joined[connID][room] = true
}

func (t *RoomTable) Leave(room, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(room, connID)
	if set := t.joined[connID]; set != nil {
		delete(set, room)
	}
}

func (t *RoomTable) leaveLocked(room, connID string) {
	if mm := t.rooms[room]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(t.rooms, room)
		}
	}
}

// InRoom 连接是否已加入某房间。
func (t *RoomTable) InRoom(room, connID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.joined[connID][room]
}

// RoomSize 房间当前连接数。
func (t *RoomTable) RoomSize(room string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[room])
}

// ===== delivery.Broadcaster =====

// ToRoom 向房间内所有连接投递，返回实际入队条数。
func (t *RoomTable) ToRoom(room string, payload []byte) int {
	return t.ToRoomExcept(room, "", payload)
}

// ToRoomExcept 同 ToRoom，但跳过指定连接（typing 不回显给始作俑者）。
func (t *RoomTable) ToRoomExcept(room, exceptConnID string, payload []byte) int {
	t.mu.RLock()
	targets := make([]*Conn, 0, len(t.rooms[room]))
	for id, c := range t.rooms[room] {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	t.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.Enqueue(payload) {
			n++
		}
	}
	return n
}

package delivery

// Broadcaster 房间广播出口，由网关的房间表实现。
// 返回实际推送到的连接数；0 表示房间当前无人，消息已落库，
// 离线方重连后走拉取补齐。
type Broadcaster interface {
	ToRoom(room string, payload []byte) int
	// ToRoomExcept 排除某条连接（typing 不回显给发起端）。
	ToRoomExcept(room string, exceptConnID string, payload []byte) int
}

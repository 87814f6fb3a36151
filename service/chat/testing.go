package chat

// 供依赖包单测使用的探针。生产代码不要引用。

// NewTestConn 无底层 socket 的裸连接，可直接注册进房间表。
func NewTestConn(id, userID string) *Conn {
	return newConn(id, userID, nil)
}

// DrainTestConn 取走 send 队列里积压的下行帧。
func DrainTestConn(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-c.send:
			out = append(out, p)
		default:
			return out
		}
	}
}

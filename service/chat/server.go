package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"RentChat/logger"
	"RentChat/resilience"
	"RentChat/service/delivery"
	"RentChat/service/events"
	"RentChat/store"
	"RentChat/tools/errs"
	"RentChat/tools/ids"
	"RentChat/tools/safe"
	"RentChat/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Presence 在线状态存储。网关只负责上线/下线打点。
type Presence interface {
	Online(ctx context.Context, userID, connID string) error
	Offline(ctx context.Context, userID, connID string) error
}

type Conf struct {
	JWT security.Options
	// AllowInsecureUserParam 仅限本地联调：无 token 时接受 ?userId= 直连。
	// 生产配置必须保持 false。
	AllowInsecureUserParam bool
}

// Server WebSocket 网关：握手鉴权、房间管理、帧路由。
type Server struct {
	conf     Conf
	store    store.Store
	rooms    *RoomTable
	disp     *Dispatcher
	pipeline *delivery.Pipeline
	unread   *delivery.Aggregator
	typing   *delivery.Signaler
	breakers *resilience.Registry
	presence Presence // 可为 nil（单机/单测）
}

func NewServer(conf Conf, st store.Store, rooms *RoomTable, disp *Dispatcher,
	pipeline *delivery.Pipeline, unread *delivery.Aggregator, typing *delivery.Signaler,
	breakers *resilience.Registry, presence Presence) *Server {
	return &Server{
		conf:     conf,
		store:    st,
		rooms:    rooms,
		disp:     disp,
		pipeline: pipeline,
		unread:   unread,
		typing:   typing,
		breakers: breakers,
		presence: presence,
	}
}

func (s *Server) Rooms() *RoomTable              { return s.rooms }
func (s *Server) Store() store.Store             { return s.store }
func (s *Server) Pipeline() *delivery.Pipeline   { return s.pipeline }
func (s *Server) Unread() *delivery.Aggregator   { return s.unread }
func (s *Server) Typing() *delivery.Signaler     { return s.typing }
func (s *Server) Breakers() *resilience.Registry { return s.breakers }
func (s *Server) Disp() *Dispatcher              { return s.disp }

// HandleWS 握手入口。鉴权在升级前完成，失败直接回 HTTP 状态码，
// 不给未授权请求建 socket 的机会。
func (s *Server) HandleWS(c *gin.Context) {
	user, err := s.authenticate(c)
	if err != nil {
		status := http.StatusUnauthorized
		if errs.ErrUserBlocked.Is(err) || errs.ErrForbidden.Is(err) {
			status = http.StatusForbidden
		}
		ce := errs.AsCodeError(err)
		if ce == nil {
			ce = &errs.CodeError{Code: 500, Msg: "internal error"}
		}
		c.JSON(status, gin.H{"code": ce.Code, "msg": ce.Msg})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed user=%s: %v", user.ID, err)
		return
	}

	conn := newConn(ids.GenerateString(), user.ID, ws)
	s.rooms.Register(conn)
	// 个人房间自动加入：通知与角标推送的落点
	s.rooms.Join(events.UserRoom(user.ID), conn.ID)
	s.markOnline(conn)

	safe.SafeGo(func() { conn.writePump() })

	ack, aerr := events.Build(events.TypeConnAck, events.ConnAckPayload{ConnID: conn.ID, UserID: user.ID})
	if aerr == nil {
		conn.Enqueue(ack)
	}
	logger.Infof("[ws] connected user=%s conn=%s remote=%s", user.ID, conn.ID, ws.RemoteAddr())

	s.readLoop(conn)

	s.markOffline(conn)
	s.rooms.Unregister(conn.ID)
	logger.Infof("[ws] disconnected user=%s conn=%s", user.ID, conn.ID)
}

// authenticate 从请求里取凭证并换出用户。
// 正道是 JWT（query token 或 Authorization: Bearer）；
// AllowInsecureUserParam 打开时才认裸 userId，且每次都记警告。
func (s *Server) authenticate(c *gin.Context) (*store.User, error) {
	token := c.Query("token")
	if token == "" {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}

	var userID string
	switch {
	case token != "":
		sub, err := security.VerifySubject(s.conf.JWT, token)
		if err != nil {
			return nil, errs.ErrAuth.WithDetail(err.Error())
		}
		userID = sub
	case s.conf.AllowInsecureUserParam && c.Query("userId") != "":
		userID = c.Query("userId")
		logger.Warnf("[ws] insecure userId param accepted user=%s remote=%s", userID, c.ClientIP())
	default:
		return nil, errs.ErrAuth.WithDetail("missing token")
	}

	user, err := s.store.FindUser(c.Request.Context(), userID)
	if err != nil {
		return nil, errs.ErrAuth.WithDetail("unknown user")
	}
	if user.Blocked {
		return nil, &errs.ErrUserBlocked
	}
	return user, nil
}

func (s *Server) readLoop(conn *Conn) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] read err user=%s conn=%s: %v", conn.UserID, conn.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := events.ParseFrame(data)
		if perr != nil {
			logger.Debugf("[ws] bad frame user=%s conn=%s: %v", conn.UserID, conn.ID, perr)
			ctx := &Context{S: s, Conn: conn}
			ctx.ReplyError(errs.ErrValidation.WithDetail("malformed frame"), "")
			continue
		}
		s.disp.Dispatch(&Context{S: s, Conn: conn}, f)
	}
}

func (s *Server) markOnline(conn *Conn) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.presence.Online(ctx, conn.UserID, conn.ID); err != nil {
		logger.Errorf("[ws] presence online user=%s: %v", conn.UserID, err)
	}
}

func (s *Server) markOffline(conn *Conn) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.presence.Offline(ctx, conn.UserID, conn.ID); err != nil {
		logger.Errorf("[ws] presence offline user=%s: %v", conn.UserID, err)
	}
}

package notify

import (
	"encoding/json"
	"strings"
	"time"

	"RentChat/tools/errs"

	"github.com/nats-io/nats.go"
)

// 下游消费的主题。SMS 网关订阅 otp.sms，风控/审计订阅 account.events。
const (
	SubjectOTPSMS        = "rentchat.otp.sms"
	SubjectAccountEvents = "rentchat.account.events"
)

type Config struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func (c *Config) norm() {
	if c.Name == "" {
		c.Name = "rentchat"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// Publisher NATS 出站事件发布器。只发 Core 主题，
// 投递可靠性由调用侧的重试引擎负责。
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(c Config) (*Publisher, error) {
	c.norm()
	if len(c.Servers) == 0 {
		return nil, errs.ErrValidation.WithDetail("nats servers missing")
	}
	nc, err := nats.Connect(strings.Join(c.Servers, ","),
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(c.Timeout),
	)
	if err != nil {
		return nil, errs.ErrNetwork.WrapMsg(err, "nats connect")
	}
	return &Publisher{nc: nc}, nil
}

// Publish JSON 编码后发布。NATS 断线重连期间 Publish 会入本地缓冲，
// 缓冲满才报错。
func (p *Publisher) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.ErrValidation.WrapMsg(err, "marshal event")
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return errs.ErrNetwork.WrapMsg(err, "nats publish")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

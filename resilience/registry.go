package resilience

import "sync"

// 操作类别。每个类别一个独立熔断器，OTP 通道故障不会殃及消息发送。
const (
	ClassMessageSend    = "message_send"
	ClassOTPSend        = "otp_send"
	ClassOTPVerify      = "otp_verify"
	ClassPasswordChange = "password_change"
	ClassPhoneUpdate    = "phone_update"
	ClassAccountDelete  = "account_delete"
)

// Registry 操作类别 -> 熔断器。进程启动时构造一次并注入使用方，
// 不走包级全局变量。
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	confs    map[string]BreakerConf
	fallback BreakerConf
}

func NewRegistry(confs map[string]BreakerConf, fallback BreakerConf) *Registry {
	if confs == nil {
		confs = map[string]BreakerConf{}
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		confs:    confs,
		fallback: fallback,
	}
}

// Get 返回类别对应的熔断器，首次使用时懒创建。
func (r *Registry) Get(class string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[class]; ok {
		return b
	}
	conf, ok := r.confs[class]
	if !ok {
		conf = r.fallback
	}
	b := NewBreaker(conf)
	r.breakers[class] = b
	return b
}

// Do 在类别熔断器的闸门内执行 fn。
func (r *Registry) Do(class string, fn func() error) error {
	return r.Get(class).Do(fn)
}

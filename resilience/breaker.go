package resilience

import (
	"sync"
	"time"

	"RentChat/tools/errs"
)

// State 熔断器三态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// BreakerConf 单个熔断器配置。
type BreakerConf struct {
	FailureThreshold  int              // 连续失败达到该值转 OPEN
	ResetTimeout      time.Duration    // OPEN 持续该时长后放行试探
	HalfOpenSuccesses int              // 连续试探成功数达到该值转 CLOSED（默认 3）
	Clock             func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *BreakerConf) norm() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = 3
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Breaker 按操作类别统计失败并短路调用。状态只在进程内，重启即复位。
type Breaker struct {
	mu            sync.Mutex
	conf          BreakerConf
	state         State
	failures      int
	lastFailure   time.Time
	halfOpenOK    int
	trialInFlight bool
}

func NewBreaker(conf BreakerConf) *Breaker {
	conf.norm()
	return &Breaker{conf: conf}
}

// State 返回当前状态（观测用）。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do 闸门 + 执行。OPEN 期间直接返回 CIRCUIT_OPEN，不触碰底层操作；
// HALF_OPEN 期间同一时刻只放行一个试探调用。
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.conf.Clock().Sub(b.lastFailure) < b.conf.ResetTimeout {
			return &errs.ErrCircuitOpen
		}
		// 冷却期已过：本次调用即试探
		b.state = StateHalfOpen
		b.halfOpenOK = 0
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &errs.ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// countable 只有基础设施类故障计入熔断统计。
// 输错验证码、越权、查无记录说明服务本身是健康的。
func countable(err error) bool {
	if err == nil {
		return false
	}
	switch errs.Classify(err) {
	case errs.KindValidation, errs.KindAuth, errs.KindForbidden, errs.KindNotFound, errs.KindRateLimit:
		return false
	}
	return true
}

func (b *Breaker) after(err error) {
	failed := err != nil && countable(err)
	// 用户侧错误：链路走通了但证明不了下游健康
	neutral := err != nil && !failed

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
		if failed {
			// 试探失败立即重开
			b.state = StateOpen
			b.lastFailure = b.conf.Clock()
			b.halfOpenOK = 0
			return
		}
		if neutral {
			return // 放下一个试探，但不计成功
		}
		b.halfOpenOK++
		if b.halfOpenOK >= b.conf.HalfOpenSuccesses {
			b.state = StateClosed
			b.failures = 0
			b.halfOpenOK = 0
		}
		return
	}

	if failed {
		b.failures++
		if b.failures >= b.conf.FailureThreshold {
			b.state = StateOpen
			b.lastFailure = b.conf.Clock()
		}
		return
	}
	b.failures = 0
}

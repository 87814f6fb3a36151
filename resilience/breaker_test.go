package resilience

import (
	"testing"
	"time"

	errs "RentChat/tools/errs"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	b := NewBreaker(BreakerConf{
		FailureThreshold:  threshold,
		ResetTimeout:      reset,
		HalfOpenSuccesses: 3,
		Clock:             clk.Now,
	})
	return b, clk
}

func failOp() error    { return &errs.ErrNetwork }
func successOp() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		_ = b.Do(failOp)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN after threshold failures", b.State())
	}

	// 短路：底层操作不被调用
	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errs.ErrCircuitOpen.Is(err) {
		t.Errorf("Do() error = %v, want CIRCUIT_OPEN", err)
	}
	if called {
		t.Error("Do() invoked operation while OPEN")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	_ = b.Do(failOp)
	_ = b.Do(failOp)
	_ = b.Do(successOp)
	_ = b.Do(failOp)
	_ = b.Do(failOp)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED (failures not consecutive)", b.State())
	}
	_ = b.Do(failOp)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b, clk := newTestBreaker(2, 30*time.Second)

	_ = b.Do(failOp)
	_ = b.Do(failOp)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}

	// 冷却期内依旧拒绝
	clk.Advance(29 * time.Second)
	if err := b.Do(successOp); !errs.ErrCircuitOpen.Is(err) {
		t.Fatalf("Do() before reset timeout = %v, want CIRCUIT_OPEN", err)
	}

	// 冷却期过后放行一个试探
	clk.Advance(2 * time.Second)
	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("trial call error: %v", err)
	}
	if !called {
		t.Fatal("trial call was not executed")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN after one trial success", b.State())
	}
}

func TestBreaker_ThreeHalfOpenSuccessesClose(t *testing.T) {
	b, clk := newTestBreaker(2, 10*time.Second)

	_ = b.Do(failOp)
	_ = b.Do(failOp)
	clk.Advance(11 * time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Do(successOp); err != nil {
			t.Fatalf("trial %d error: %v", i+1, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after 3 half-open successes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2, 10*time.Second)

	_ = b.Do(failOp)
	_ = b.Do(failOp)
	clk.Advance(11 * time.Second)

	_ = b.Do(successOp) // HALF_OPEN，1次成功
	_ = b.Do(failOp)    // 单次失败立即重开
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN after half-open failure", b.State())
	}

	// 重开后 lastFailure 已刷新：需再等满冷却期
	clk.Advance(9 * time.Second)
	if err := b.Do(successOp); !errs.ErrCircuitOpen.Is(err) {
		t.Fatalf("Do() = %v, want CIRCUIT_OPEN (failure time refreshed)", err)
	}
}

func TestBreaker_HalfOpenSingleTrialInFlight(t *testing.T) {
	b, clk := newTestBreaker(1, time.Second)

	_ = b.Do(failOp)
	clk.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// 试探在途：并发调用被拒绝
	if err := b.Do(successOp); !errs.ErrCircuitOpen.Is(err) {
		t.Fatalf("concurrent Do() = %v, want CIRCUIT_OPEN", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial error: %v", err)
	}
}

func TestRegistry_IndependentClasses(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	reg := NewRegistry(map[string]BreakerConf{
		ClassOTPSend:       {FailureThreshold: 2, ResetTimeout: 10 * time.Second, Clock: clk.Now},
		ClassAccountDelete: {FailureThreshold: 1, ResetTimeout: time.Minute, Clock: clk.Now},
	}, BreakerConf{FailureThreshold: 5, ResetTimeout: 30 * time.Second, Clock: clk.Now})

	// OTP 通道故障打开
	_ = reg.Do(ClassOTPSend, failOp)
	_ = reg.Do(ClassOTPSend, failOp)
	if reg.Get(ClassOTPSend).State() != StateOpen {
		t.Fatal("otp_send breaker should be OPEN")
	}

	// 消息发送不受影响
	if err := reg.Do(ClassMessageSend, successOp); err != nil {
		t.Fatalf("message_send Do() error: %v", err)
	}
	if reg.Get(ClassMessageSend).State() != StateClosed {
		t.Fatal("message_send breaker should stay CLOSED")
	}

	// 敏感操作阈值更低
	_ = reg.Do(ClassAccountDelete, failOp)
	if reg.Get(ClassAccountDelete).State() != StateOpen {
		t.Fatal("account_delete breaker should OPEN after a single failure")
	}
}

func TestBreaker_UserErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(2, 30*time.Second)

	wrongCode := func() error { return &errs.ErrWrongCode }
	for i := 0; i < 10; i++ {
		_ = b.Do(wrongCode)
	}
	if b.State() != StateClosed {
		t.Fatal("validation errors must not open the breaker")
	}

	// 用户错误说明服务健康，会打断基础设施失败连击
	_ = b.Do(failOp)
	_ = b.Do(wrongCode)
	_ = b.Do(failOp)
	if b.State() != StateClosed {
		t.Fatal("interrupted failure streak must not open the breaker")
	}
}

func TestBreaker_HalfOpenNeutralErrorsDontClose(t *testing.T) {
	b, clk := newTestBreaker(2, 10*time.Second)
	wrongCode := func() error { return &errs.ErrWrongCode }

	_ = b.Do(failOp)
	_ = b.Do(failOp)
	clk.Advance(11 * time.Second)

	// 试探期里连输三次验证码：链路通了，但下游健康还没被证明
	for i := 0; i < 3; i++ {
		_ = b.Do(wrongCode)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN (user errors are not trial successes)", b.State())
	}

	// 真正的成功才推进关闭
	for i := 0; i < 3; i++ {
		if err := b.Do(successOp); err != nil {
			t.Fatalf("trial %d error: %v", i+1, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after 3 real successes", b.State())
	}
}

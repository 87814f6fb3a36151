package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"RentChat/tools/errs"
)

// Policy 重试策略。零值不可用，调用方从 config 取预设或自行构造。
type Policy struct {
	MaxRetries     int           // 首次尝试之外最多重试次数
	BaseDelay      time.Duration // 第一次重试前的基础延迟
	MaxDelay       time.Duration // 退避上限
	BackoffFactor  float64       // 指数因子（<=1 视为 2）
	RetryableKinds []errs.Kind   // 允许重试的错误类别

	// OnRetry 每次重试睡眠前回调（UI 反馈用），可为 nil。
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep 可注入（单测用）；nil => 真实睡眠，响应 ctx 取消。
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand 可注入抖动源（单测用）；nil => math/rand。
	Rand func() float64
}

// ExhaustedError 重试预算耗尽后的终态错误，区别于单次即时失败，
// UI 据此停止继续提供“重试”。
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retry 执行 op，失败时按策略指数退避重试。
// VALIDATION 类错误永不重试；不在 RetryableKinds 内的类别立即透传。
func Retry(ctx context.Context, op func(ctx context.Context) error, p Policy) error {
	if p.BackoffFactor <= 1 {
		p.BackoffFactor = 2
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	randFn := p.Rand
	if randFn == nil {
		randFn = rand.Float64
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		kind := errs.Classify(err)
		if kind == errs.KindValidation || !kindIn(kind, p.RetryableKinds) {
			return err
		}
		if attempt >= p.MaxRetries {
			return &ExhaustedError{Attempts: attempt + 1, Last: err}
		}

		delay := backoffDelay(p, attempt+1, randFn)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// backoffDelay = min(base * factor^(attempt-1), max) + jitter。
// 抖动最多 25%，错开重试风暴。
func backoffDelay(p Policy, attempt int, randFn func() float64) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffFactor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	jitter := d * 0.25 * randFn()
	return time.Duration(d + jitter)
}

func kindIn(k errs.Kind, kinds []errs.Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

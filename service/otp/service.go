package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"RentChat/logger"
	"RentChat/resilience"
	"RentChat/service/notify"
	"RentChat/tools/errs"
)

// 验证码用途。与操作类别一一对应。
const (
	ScopePasswordChange = "password_change"
	ScopePhoneUpdate    = "phone_update"
	ScopeAccountDelete  = "account_delete"
)

// Sender 出站事件发布（notify.Publisher 满足）。
type Sender interface {
	Publish(subject string, v any) error
}

type Conf struct {
	CodeTTL  time.Duration // 验证码有效期
	Cooldown time.Duration // 两次下发之间的最小间隔
	Retry    resilience.Policy

	// GenCode 可注入（单测用固定码）；nil => crypto/rand 6 位数字。
	GenCode func() (string, error)
}

func (c *Conf) norm() {
	if c.CodeTTL <= 0 {
		c.CodeTTL = 5 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
}

// SMSJob 丢给短信网关消费的任务。
type SMSJob struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Scope string `json:"scope"`
	TTL   int64  `json:"ttlSeconds"`
}

// Service 验证码下发与校验。下发走 otp_send 熔断器 + 重试引擎，
// 校验走 otp_verify 熔断器；输错验证码是 VALIDATION，永不触发重试。
type Service struct {
	conf     Conf
	codes    CodeStore
	sender   Sender
	breakers *resilience.Registry

	genCode func() (string, error) // 可注入（单测用固定码）
}

func NewService(conf Conf, codes CodeStore, sender Sender, breakers *resilience.Registry) *Service {
	conf.norm()
	gen := conf.GenCode
	if gen == nil {
		gen = genCode
	}
	return &Service{
		conf:     conf,
		codes:    codes,
		sender:   sender,
		breakers: breakers,
		genCode:  gen,
	}
}

// Dispatch 下发验证码。冷却期内直接 RATE_LIMIT 并带剩余秒数，
// 不碰发送通道。
func (s *Service) Dispatch(ctx context.Context, scope, phone string) error {
	if phone == "" {
		return errs.ErrValidation.WithDetail("phone required")
	}

	left, err := s.codes.CooldownLeft(ctx, scope, phone)
	if err != nil {
		return err
	}
	if left > 0 {
		return errs.ErrRateLimited.WithCooldown(left)
	}

	code, err := s.genCode()
	if err != nil {
		return errs.ErrStorage.WrapMsg(err, "generate otp")
	}
	if err := s.codes.Save(ctx, scope, phone, code, s.conf.CodeTTL, s.conf.Cooldown); err != nil {
		return err
	}

	job := SMSJob{Phone: phone, Code: code, Scope: scope, TTL: int64(s.conf.CodeTTL.Seconds())}
	return s.breakers.Do(resilience.ClassOTPSend, func() error {
		return resilience.Retry(ctx, func(context.Context) error {
			return s.sender.Publish(notify.SubjectOTPSMS, job)
		}, s.conf.Retry)
	})
}

// Verify 校验验证码。匹配即消费；后续同码重放会拿到 NotFound。
func (s *Service) Verify(ctx context.Context, scope, phone, code string) error {
	if phone == "" || code == "" {
		return errs.ErrValidation.WithDetail("phone and code required")
	}
	err := s.breakers.Do(resilience.ClassOTPVerify, func() error {
		return s.codes.Verify(ctx, scope, phone, code)
	})
	if err != nil && errs.ErrWrongCode.Is(err) {
		logger.Infof("[otp] wrong code scope=%s phone=%s", scope, phone)
	}
	return err
}

// genCode 6 位数字验证码，熵取自 crypto/rand。
func genCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}

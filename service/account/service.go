package account

import (
	"context"

	"RentChat/logger"
	"RentChat/resilience"
	"RentChat/service/notify"
	"RentChat/service/otp"
	"RentChat/store"
	"RentChat/tools/errs"
)

// Event 账号变更事件，发到 account.events 给风控/审计消费。
type Event struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
	At     int64  `json:"at"`
}

const (
	ActionPasswordChanged = "password_changed"
	ActionPhoneUpdated    = "phone_updated"
	ActionAccountDeleted  = "account_deleted"
)

// Service 敏感账号操作。每个操作先过验证码，再在各自的熔断器
// 闸门内落库。验证码不对直接打回，不碰存储。
type Service struct {
	store    store.Store
	otp      *otp.Service
	breakers *resilience.Registry
	events   otp.Sender // 可为 nil（单测 / 无 NATS 部署）

	now func() int64
}

func NewService(st store.Store, otpSvc *otp.Service, breakers *resilience.Registry, events otp.Sender, now func() int64) *Service {
	return &Service{store: st, otp: otpSvc, breakers: breakers, events: events, now: now}
}

// RequestOTP 给指定用途下发验证码，发往用户当前绑定手机号。
func (s *Service) RequestOTP(ctx context.Context, userID, scope string) error {
	switch scope {
	case otp.ScopePasswordChange, otp.ScopePhoneUpdate, otp.ScopeAccountDelete:
	default:
		return errs.ErrValidation.WithDetail("unknown otp scope " + scope)
	}
	u, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.Phone == "" {
		return errs.ErrValidation.WithDetail("no phone bound to account")
	}
	return s.otp.Dispatch(ctx, scope, u.Phone)
}

// ChangePassword 口令散列由 API 层算好传入，这里不碰明文。
func (s *Service) ChangePassword(ctx context.Context, userID, code, newPasswordHash string) error {
	if newPasswordHash == "" {
		return errs.ErrValidation.WithDetail("password hash required")
	}
	return s.guarded(ctx, userID, code, otp.ScopePasswordChange, resilience.ClassPasswordChange,
		ActionPasswordChanged, func(ctx context.Context) error {
			return s.store.UpdatePassword(ctx, userID, newPasswordHash)
		})
}

// UpdatePhone 验证码发往旧手机号：换绑必须证明还持有旧号。
func (s *Service) UpdatePhone(ctx context.Context, userID, code, newPhone string) error {
	if newPhone == "" {
		return errs.ErrValidation.WithDetail("new phone required")
	}
	return s.guarded(ctx, userID, code, otp.ScopePhoneUpdate, resilience.ClassPhoneUpdate,
		ActionPhoneUpdated, func(ctx context.Context) error {
			return s.store.UpdatePhone(ctx, userID, newPhone)
		})
}

func (s *Service) DeleteAccount(ctx context.Context, userID, code string) error {
	return s.guarded(ctx, userID, code, otp.ScopeAccountDelete, resilience.ClassAccountDelete,
		ActionAccountDeleted, func(ctx context.Context) error {
			return s.store.DeleteUser(ctx, userID)
		})
}

// guarded 验证码 -> 熔断闸门内落库 -> 事件。事件发布失败只记日志，
// 操作本身已经生效。
func (s *Service) guarded(ctx context.Context, userID, code, scope, class, action string, mutate func(context.Context) error) error {
	u, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.otp.Verify(ctx, scope, u.Phone, code); err != nil {
		return err
	}
	if err := s.breakers.Do(class, func() error { return mutate(ctx) }); err != nil {
		return err
	}
	s.publishEvent(userID, action)
	return nil
}

func (s *Service) publishEvent(userID, action string) {
	if s.events == nil {
		return
	}
	ev := Event{UserID: userID, Action: action, At: s.now()}
	if err := s.events.Publish(notify.SubjectAccountEvents, ev); err != nil {
		logger.Errorf("[account] publish %s user=%s: %v", action, userID, err)
	}
}

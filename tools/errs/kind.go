package errs

import (
	"context"
	"errors"
	"net"
)

// Kind 错误分类，决定重试引擎是否重试。
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindServer
	KindValidation
	KindRateLimit
	KindAuth
	KindForbidden
	KindNotFound
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NETWORK"
	case KindTimeout:
		return "TIMEOUT"
	case KindServer:
		return "SERVER"
	case KindValidation:
		return "VALIDATION"
	case KindRateLimit:
		return "RATE_LIMIT"
	case KindAuth:
		return "AUTH"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

// 预定义业务错误。code 段：11xx 认证/授权，12xx 校验，13xx 资源，
// 14xx 传输/存储，15xx 限流，16xx 熔断。
var (
	ErrAuth         = CodeError{Code: 1101, Msg: "authentication failed", Kind: KindAuth}
	ErrUserBlocked  = CodeError{Code: 1102, Msg: "user is blocked", Kind: KindAuth}
	ErrForbidden    = CodeError{Code: 1103, Msg: "not a conversation participant", Kind: KindForbidden}
	ErrValidation   = CodeError{Code: 1201, Msg: "invalid payload", Kind: KindValidation}
	ErrEmptyMessage = CodeError{Code: 1202, Msg: "message text and attachment both empty", Kind: KindValidation}
	ErrWrongCode    = CodeError{Code: 1203, Msg: "verification code mismatch", Kind: KindValidation}
	ErrNotFound     = CodeError{Code: 1301, Msg: "record not found", Kind: KindNotFound}
	ErrStorage      = CodeError{Code: 1401, Msg: "storage operation failed", Kind: KindServer}
	ErrNetwork      = CodeError{Code: 1402, Msg: "network failure", Kind: KindNetwork}
	ErrTimeout      = CodeError{Code: 1403, Msg: "operation timed out", Kind: KindTimeout}
	ErrRateLimited  = CodeError{Code: 1501, Msg: "too many requests", Kind: KindRateLimit}
	ErrCircuitOpen  = CodeError{Code: 1601, Msg: "service temporarily unavailable", Kind: KindCircuitOpen}
)

// Classify 将任意错误归入 Kind。
// CodeError 直接取其 Kind；net.Error 按是否超时归类；
// context 超时归 TIMEOUT；其余归 UNKNOWN。
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if ce := AsCodeError(err); ce != nil {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

package errs

import (
	"errors"
	"strconv"
	"strings"
	"time"

	pkgerr "github.com/pkg/errors"
)

// CodeError 业务错误：code + msg + detail，可携带 Kind 供重试引擎分类。
type CodeError struct {
	Code     int           `json:"code"`
	Msg      string        `json:"msg"`
	Detail   string        `json:"detail,omitempty"`
	Kind     Kind          `json:"-"`
	Cooldown time.Duration `json:"-"` // 仅 KindRateLimit 使用
}

func NewCodeError(code int, msg string, kind Kind) *CodeError {
	return &CodeError{Code: code, Msg: msg, Kind: kind}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

func (e *CodeError) clone() *CodeError {
	c := *e
	return &c
}

// WithDetail 返回附加 detail 的副本，原值不变。
func (e *CodeError) WithDetail(detail string) *CodeError {
	c := e.clone()
	if c.Detail == "" {
		c.Detail = detail
	} else {
		c.Detail += ", " + detail
	}
	return c
}

// WithCooldown 限流错误附带剩余冷却时间。
func (e *CodeError) WithCooldown(d time.Duration) *CodeError {
	c := e.clone()
	c.Cooldown = d
	return c
}

// WrapMsg 包装底层错误并附加说明，保留本错误的 code/kind。
func (e *CodeError) WrapMsg(err error, msg string) error {
	c := e.clone()
	if msg != "" {
		if c.Detail == "" {
			c.Detail = msg
		} else {
			c.Detail += ", " + msg
		}
	}
	if err != nil {
		c.Detail += ": " + err.Error()
	}
	return pkgerr.WithStack(c)
}

// Is 按 code 比较，支持 errors.Is(err, &ErrXxx) 式判断。
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Wrap 为任意错误补上调用栈。
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerr.WithStack(err)
}

// AsCodeError 解出链路中的 *CodeError，不存在时返回 nil。
func AsCodeError(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

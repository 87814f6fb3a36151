package otp

import (
	"context"
	"sync"
	"time"

	"RentChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// CodeStore 验证码存取。scope 区分用途（password_change / phone_update /
// account_delete），同一手机号不同用途的码互不干扰。
type CodeStore interface {
	// Save 写入验证码并启动冷却窗口。
	Save(ctx context.Context, scope, phone, code string, ttl, cooldown time.Duration) error
	// Verify 比对验证码：匹配则原子删除（一次性），不匹配保留原码，
	// 返回 ErrWrongCode；连错 maxVerifyAttempts 次后整个码作废，
	// 没有在途验证码返回 ErrNotFound。
	Verify(ctx context.Context, scope, phone, code string) error
	// CooldownLeft 剩余冷却时间，0 表示可以再发。
	CooldownLeft(ctx context.Context, scope, phone string) (time.Duration, error)
}

// maxVerifyAttempts 连错次数上限，超过后作废在途验证码，防暴力试码。
const maxVerifyAttempts = 5

// ===== Redis 实现 =====

// 比对即消费，匹配才删。KEYS[1] 验证码，KEYS[2] 连错计数。
// 返回：1 匹配；0 不匹配（达到 ARGV[2] 次后连码一起删）；-1 无在途验证码。
const luaVerifyCode = `
local v = redis.call("GET", KEYS[1])
if not v then
  return -1
end
if v == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  return 1
end
local n = redis.call("INCR", KEYS[2])
if n == 1 then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl > 0 then
    redis.call("PEXPIRE", KEYS[2], ttl)
  end
end
if n >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func codeKey(scope, phone string) string  { return "otp:code:" + scope + ":" + phone }
func coolKey(scope, phone string) string  { return "otp:cool:" + scope + ":" + phone }
func triesKey(scope, phone string) string { return "otp:tries:" + scope + ":" + phone }

func (s *RedisStore) Save(ctx context.Context, scope, phone, code string, ttl, cooldown time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, codeKey(scope, phone), code, ttl)
	pipe.Set(ctx, coolKey(scope, phone), "1", cooldown)
	pipe.Del(ctx, triesKey(scope, phone))
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.ErrStorage.WrapMsg(err, "otp save")
	}
	return nil
}

func (s *RedisStore) Verify(ctx context.Context, scope, phone, code string) error {
	n, err := s.rdb.Eval(ctx, luaVerifyCode,
		[]string{codeKey(scope, phone), triesKey(scope, phone)},
		code, maxVerifyAttempts).Int64()
	if err != nil {
		return errs.ErrStorage.WrapMsg(err, "otp verify")
	}
	switch n {
	case 1:
		return nil
	case -1:
		return errs.ErrNotFound.WithDetail("otp expired or never sent")
	default:
		return &errs.ErrWrongCode
	}
}

func (s *RedisStore) CooldownLeft(ctx context.Context, scope, phone string) (time.Duration, error) {
	d, err := s.rdb.PTTL(ctx, coolKey(scope, phone)).Result()
	if err != nil {
		return 0, errs.ErrStorage.WrapMsg(err, "otp cooldown")
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// ===== 内存实现（单测 / 本地开发） =====

type memEntry struct {
	code     string
	expireAt time.Time
	coolTill time.Time
	misses   int
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	Clock func() time.Time // 可注入（单测用）
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		Clock:   time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, scope, phone, code string, ttl, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Clock()
	s.entries[scope+":"+phone] = &memEntry{
		code:     code,
		expireAt: now.Add(ttl),
		coolTill: now.Add(cooldown),
	}
	return nil
}

func (s *MemoryStore) Verify(_ context.Context, scope, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[scope+":"+phone]
	if !ok || e.code == "" || s.Clock().After(e.expireAt) {
		return errs.ErrNotFound.WithDetail("otp expired or never sent")
	}
	if e.code != code {
		e.misses++
		if e.misses >= maxVerifyAttempts {
			e.code = "" // 试码次数用光，作废
		}
		return &errs.ErrWrongCode
	}
	e.code = "" // 消费后失效，冷却保留
	return nil
}

func (s *MemoryStore) CooldownLeft(_ context.Context, scope, phone string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[scope+":"+phone]
	if !ok {
		return 0, nil
	}
	if left := e.coolTill.Sub(s.Clock()); left > 0 {
		return left, nil
	}
	return 0, nil
}

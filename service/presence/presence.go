package presence

import (
	"context"
	"time"

	"RentChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Store 用户在线状态：presence:<userId> 是该用户活跃连接ID的集合。
// 多端同时在线时集合里有多个成员，最后一条连接下线才算离线。
// TTL 是兜底：进程崩了没来得及下线，最多脏这么久。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func key(userID string) string { return "presence:" + userID }

func (s *Store) Online(ctx context.Context, userID, connID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key(userID), connID)
	pipe.Expire(ctx, key(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.ErrStorage.WrapMsg(err, "presence online")
	}
	return nil
}

func (s *Store) Offline(ctx context.Context, userID, connID string) error {
	if err := s.rdb.SRem(ctx, key(userID), connID).Err(); err != nil {
		return errs.ErrStorage.WrapMsg(err, "presence offline")
	}
	return nil
}

// Refresh 心跳续期。
func (s *Store) Refresh(ctx context.Context, userID string) error {
	if err := s.rdb.Expire(ctx, key(userID), s.ttl).Err(); err != nil {
		return errs.ErrStorage.WrapMsg(err, "presence refresh")
	}
	return nil
}

func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.rdb.SCard(ctx, key(userID)).Result()
	if err != nil {
		return false, errs.ErrStorage.WrapMsg(err, "presence query")
	}
	return n > 0, nil
}

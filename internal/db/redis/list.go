package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/leadharvest/leadharvest/internal/db"
)

// LPush prepends a value to a list.
func (s *Store) LPush(ctx context.Context, key string, value []byte) error {
	cmd := s.b().Lpush().Key(key).Element(string(value)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpLPush, Err: err}
	}
	return nil
}

// BRPop blocks up to timeout for the next list element.
// Returns db.ErrKeyNotFound when the wait times out empty.
func (s *Store) BRPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	cmd := s.b().Brpop().Key(key).Timeout(timeout.Seconds()).Build()
	arr, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpBRPop, Err: err}
	}
	// BRPOP replies [key, value].
	if len(arr) < 2 {
		return nil, db.ErrKeyNotFound
	}
	return []byte(arr[1]), nil
}

// LLen returns the length of a list.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Llen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}

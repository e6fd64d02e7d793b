package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/leadharvest/leadharvest/internal/db"
)

// HGet retrieves one hash field.
func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, error) {
	cmd := s.b().Hget().Key(key).Field(field).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpHGet, Err: err}
	}
	return data, nil
}

// HSet writes one hash field.
func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	cmd := s.b().Hset().Key(key).FieldValue().FieldValue(field, string(value)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HGetAll retrieves every field of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	out := make(map[string][]byte, len(m))
	for f, v := range m {
		out[f] = []byte(v)
	}
	return out, nil
}

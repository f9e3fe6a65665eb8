// Package redisstore implements the Metadata Store Adapter against
// Redis, using gomodule/redigo the way
// thatique-awan/session/redissession uses it against a connection
// pool: HGET/HGETALL/HMSET/EXPIRE for hash records, each operation a
// single Redis command and therefore atomic on its own, plus a Lua
// script (the teacher's insertScript pattern) wrapping HINCRBY for
// Incr's increment-then-read on a field that may not exist yet.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/kvstore"
)

// Option configures a Store.
type Option func(*store)

// Prefix sets a key prefix applied to every id this Store touches.
func Prefix(p string) Option {
	return func(s *store) { s.prefix = p }
}

type store struct {
	pool   *redis.Pool
	prefix string
}

// New returns a kvstore.Store backed by pool.
func New(pool *redis.Pool, opts ...Option) kvstore.Store {
	s := &store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) key(id string) string { return s.prefix + id }

func (s *store) conn(ctx context.Context) (redis.Conn, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, verr.New(verr.Unavailable, err, 2, "redisstore: get connection")
	}
	return conn, nil
}

func (s *store) SetFields(ctx context.Context, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := redis.Args{}.Add(s.key(id))
	for k, v := range fields {
		args = args.Add(k, v)
	}
	_, err = conn.Do("HMSET", args...)
	return wrapErr(err, "SetFields")
}

func (s *store) GetField(ctx context.Context, id, field string) (string, bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return "", false, err
	}
	defer conn.Close()

	v, err := redis.String(conn.Do("HGET", s.key(id), field))
	if err == redis.ErrNil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "GetField")
	}
	return v, true, nil
}

func (s *store) GetAll(ctx context.Context, id string) (map[string]string, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	m, err := redis.StringMap(conn.Do("HGETALL", s.key(id)))
	if err != nil {
		return nil, wrapErr(err, "GetAll")
	}
	return m, nil
}

func (s *store) DelField(ctx context.Context, id, field string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("HDEL", s.key(id), field)
	return wrapErr(err, "DelField")
}

// incrScript atomically increments a hash field (initializing it to 0
// first if absent -- HINCRBY already does this, but we use a script so
// the read-back is part of the same round trip and so the operation
// composes with a future TTL refresh without a second RTT).
//
// KEYS[1] - record key
// ARGV[1] - field name
// ARGV[2] - delta
var incrScript = redis.NewScript(1, `
	return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
`)

func (s *store) Incr(ctx context.Context, id, field string, delta int64) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	n, err := redis.Int64(incrScript.Do(conn, s.key(id), field, delta))
	if err != nil {
		return 0, wrapErr(err, "Incr")
	}
	return n, nil
}

func (s *store) Expire(ctx context.Context, id string, ttl time.Duration) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	key := s.key(id)
	if ttl <= 0 {
		_, err = conn.Do("PERSIST", key)
		return wrapErr(err, "Expire")
	}
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		secs = 1
	}
	_, err = conn.Do("EXPIRE", key, secs)
	return wrapErr(err, "Expire")
}

func (s *store) TTL(ctx context.Context, id string) (time.Duration, bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	secs, err := redis.Int64(conn.Do("TTL", s.key(id)))
	if err != nil {
		return 0, false, wrapErr(err, "TTL")
	}
	switch secs {
	case -2:
		return 0, false, nil
	case -1:
		return -1, true, nil
	default:
		return time.Duration(secs) * time.Second, true, nil
	}
}

func (s *store) Exists(ctx context.Context, id string) (bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	n, err := redis.Int(conn.Do("EXISTS", s.key(id)))
	if err != nil {
		return false, wrapErr(err, "Exists")
	}
	return n > 0, nil
}

func (s *store) Del(ctx context.Context, id string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("DEL", s.key(id))
	return wrapErr(err, "Del")
}

func (s *store) Ping(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := conn.Do("PING")
	if err != nil {
		return wrapErr(err, "Ping")
	}
	if s, ok := reply.(string); !ok || s != "PONG" {
		return verr.Newf(verr.Unavailable, errors.New("unexpected PING reply"), "redisstore: Ping")
	}
	return nil
}

func (s *store) Close() error {
	return s.pool.Close()
}

func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return verr.New(verr.Unavailable, err, 2, "redisstore: "+op)
}

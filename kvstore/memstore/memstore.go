// Package memstore implements kvstore.Store in process memory,
// following the same pattern as thatique-awan/session/memsession: a
// mutex-guarded map standing in for the real backend, intended for
// tests and local development rather than production use.
package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/thatique/sendcore/kvstore"
)

type record struct {
	fields  map[string]string
	expires time.Time // zero means no TTL
}

type store struct {
	mu      sync.Mutex
	records map[string]*record
}

// New returns an in-memory kvstore.Store.
func New() kvstore.Store {
	return &store{records: map[string]*record{}}
}

func (s *store) get(id string) *record {
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	if !r.expires.IsZero() && time.Now().After(r.expires) {
		delete(s.records, id)
		return nil
	}
	return r
}

func (s *store) SetFields(ctx context.Context, id string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r == nil {
		r = &record{fields: map[string]string{}}
		s.records[id] = r
	}
	for k, v := range fields {
		r.fields[k] = v
	}
	return nil
}

func (s *store) GetField(ctx context.Context, id, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r == nil {
		return "", false, nil
	}
	v, ok := r.fields[field]
	return v, ok, nil
}

func (s *store) GetAll(ctx context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	out := map[string]string{}
	if r == nil {
		return out, nil
	}
	for k, v := range r.fields {
		out[k] = v
	}
	return out, nil
}

func (s *store) DelField(ctx context.Context, id, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r == nil {
		return nil
	}
	delete(r.fields, field)
	return nil
}

func (s *store) Incr(ctx context.Context, id, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r == nil {
		r = &record{fields: map[string]string{}}
		s.records[id] = r
	}
	cur, _ := strconv.ParseInt(r.fields[field], 10, 64)
	cur += delta
	r.fields[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (s *store) Expire(ctx context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r == nil {
		return nil
	}
	if ttl <= 0 {
		r.expires = time.Time{}
		return nil
	}
	r.expires = time.Now().Add(ttl)
	return nil
}

func (s *store) TTL(ctx context.Context, id string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.get(id)
	if r == nil {
		return 0, false, nil
	}
	if r.expires.IsZero() {
		return -1, true, nil
	}
	return time.Until(r.expires), true, nil
}

func (s *store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id) != nil, nil
}

func (s *store) Del(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *store) Ping(ctx context.Context) error { return nil }
func (s *store) Close() error                   { return nil }

// Package kvstore defines the Metadata Store Adapter: the narrow set
// of atomic hash/TTL operations the transfer coordinators need to keep
// per-file state, independent of any particular backing store.
// Adapted from thatique-awan/session/driver's storage interface, which
// plays the same "portable adapter over a driver backend" role for
// session records; redisstore is this package's equivalent of
// session/redissession.
package kvstore

import (
	"context"
	"time"
)

// Store is the Metadata Store Adapter's portable interface. All
// operations on a single id are expected to be atomic with respect to
// each other; Incr and SetFields in particular are used by the
// transfer coordinators to enforce invariants (download counters,
// record seeding) without any in-process locking.
type Store interface {
	// SetFields atomically sets one or more hash fields on id,
	// creating the hash if it doesn't exist. Does not touch the key's
	// TTL.
	SetFields(ctx context.Context, id string, fields map[string]string) error

	// GetField returns the value of one hash field, and whether it was
	// present.
	GetField(ctx context.Context, id, field string) (string, bool, error)

	// GetAll returns every field on id. Returns an empty, non-nil map
	// and no error if id does not exist.
	GetAll(ctx context.Context, id string) (map[string]string, error)

	// DelField removes one hash field from id.
	DelField(ctx context.Context, id, field string) error

	// Incr atomically increments an integer-valued hash field by delta
	// (delta may be negative) and returns the field's new value. The
	// field is created (initialized to 0 before the increment) if
	// absent.
	Incr(ctx context.Context, id, field string, delta int64) (int64, error)

	// Expire sets id's TTL. A ttl <= 0 removes any existing TTL (the
	// key persists until explicitly deleted).
	Expire(ctx context.Context, id string, ttl time.Duration) error

	// TTL returns id's remaining time-to-live. Returns a negative
	// duration if id has no TTL set, and ok=false if id does not exist.
	TTL(ctx context.Context, id string) (ttl time.Duration, ok bool, err error)

	// Exists reports whether id exists.
	Exists(ctx context.Context, id string) (bool, error)

	// Del deletes id and all its fields. Deleting a nonexistent id is
	// not an error.
	Del(ctx context.Context, id string) error

	// Ping probes the backend for liveness; used as a health.Checker.
	Ping(ctx context.Context) error

	// Close releases resources held by the Store.
	Close() error
}

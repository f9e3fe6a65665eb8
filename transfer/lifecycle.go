package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/kvstore"
)

// Lifecycle owns the grace-window timer between a
// download limit being reached and the record/blob actually being
// deleted, so an already-streaming download has a chance to finish.
// Everything else in the state machine -- TTL expiry, owner delete --
// is driven directly by the Metadata Store Adapter or by RecordManager
// and needs no in-process state.
//
// A missed deletion (process restart during the grace window) is
// tolerated by design: the record's own TTL still applies, and Delete
// is idempotent, so a later manual or janitor sweep is safe.
type Lifecycle struct {
	bk    *blob.Bucket
	store kvstore.Store

	mu      sync.Mutex
	timers  map[string]*time.Timer
	baseCtx context.Context
}

// NewLifecycle returns a Lifecycle that deletes through bk and store.
// baseCtx bounds the deferred deletion calls it schedules; callers
// should pass a long-lived context (e.g. the server's lifetime
// context), not a per-request one.
func NewLifecycle(baseCtx context.Context, bk *blob.Bucket, store kvstore.Store) *Lifecycle {
	return &Lifecycle{bk: bk, store: store, timers: map[string]*time.Timer{}, baseCtx: baseCtx}
}

// ScheduleDeletion arranges for id's record and blob to be deleted
// after grace elapses. Scheduling the same id again replaces any
// pending timer (harmless: Delete is idempotent either way).
func (l *Lifecycle) ScheduleDeletion(id string, grace time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[id]; ok {
		t.Stop()
	}
	l.timers[id] = time.AfterFunc(grace, func() {
		l.mu.Lock()
		delete(l.timers, id)
		l.mu.Unlock()
		_ = l.Delete(l.baseCtx, id)
	})
}

// Delete removes id's blob and then its record. A blob delete failure
// is returned and leaves the record in place; no multipart session is
// aborted here (RecordManager.Delete does that before calling Delete).
// Idempotent: deleting an already-gone id is a no-op success.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	if err := l.bk.Delete(ctx, id); err != nil {
		return err
	}
	return l.store.Del(ctx, id)
}

// Cancel stops any pending grace-window timer for id, used when an
// owner deletes a record directly (no need to wait out the grace
// window that was never scheduled, but harmless if it was).
func (l *Lifecycle) Cancel(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[id]; ok {
		t.Stop()
		delete(l.timers, id)
	}
}

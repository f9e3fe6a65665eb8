package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatique/sendcore/auth"
	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/kvstore/memstore"
)

// seedUnencryptedDownload plans, writes, and completes a small
// unencrypted upload, returning its id/owner for download tests.
func seedUnencryptedDownload(t *testing.T, ctx context.Context, cfg *Config, uc *UploadCoordinator, bk *blob.Bucket) (id, owner string) {
	t.Helper()
	plan, err := uc.Plan(ctx, PlanRequest{FileSize: 16, Encrypted: false})
	require.NoError(t, err)
	require.NoError(t, bk.WriteAll(ctx, plan.ID, "application/octet-stream", bytes.Repeat([]byte{9}, 16)))
	meta := base64.StdEncoding.EncodeToString([]byte(`{"files":[{"name":"a.txt"}]}`))
	_, err = uc.Complete(ctx, CompleteRequest{ID: plan.ID, Metadata: meta, ActualSize: 16, HaveSize: true})
	require.NoError(t, err)
	return plan.ID, plan.Owner
}

func TestDownloadCoordinatorURLHandoffAndCompleteDeletesAtLimit(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	cfg.DefaultDownloads = 1
	cfg.DownloadGraceMS = 1
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)
	verifier := auth.New(store)
	lifecycle := NewLifecycle(ctx, bk, store)
	dc := NewDownloadCoordinator(cfg, bk, store, verifier, lifecycle)

	id, _ := seedUnencryptedDownload(t, ctx, cfg, uc, bk)

	handoff, outcome, err := dc.URLHandoff(ctx, id, "")
	require.NoError(t, err)
	assert.Empty(t, outcome.Nonce) // unencrypted records never challenge
	assert.True(t, handoff.UseSignedURL)
	assert.NotEmpty(t, handoff.URL)
	assert.Equal(t, int64(0), handoff.Dl)

	complete, _, err := dc.Complete(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), complete.Dl)
	assert.True(t, complete.Deleted)

	// Deletion runs on a grace-window timer; poll briefly for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		exists, err := bk.Exists(ctx, id)
		require.NoError(t, err)
		if !exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("object was not deleted within the grace window")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDownloadCoordinatorEncryptedRequiresSignatureAndRotatesNonce(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)
	verifier := auth.New(store)
	lifecycle := NewLifecycle(ctx, bk, store)
	dc := NewDownloadCoordinator(cfg, bk, store, verifier, lifecycle)

	plan, err := uc.Plan(ctx, PlanRequest{FileSize: 16, Encrypted: true})
	require.NoError(t, err)
	require.NoError(t, bk.WriteAll(ctx, plan.ID, "application/octet-stream", bytes.Repeat([]byte{1}, 16)))
	authKey := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	meta := base64.StdEncoding.EncodeToString([]byte(`{"files":[{"name":"s.bin"}]}`))
	_, err = uc.Complete(ctx, CompleteRequest{ID: plan.ID, Metadata: meta, AuthKey: authKey, ActualSize: 16, HaveSize: true})
	require.NoError(t, err)

	rec, err := loadRecord(ctx, store, plan.ID)
	require.NoError(t, err)
	nonceBefore := rec.Nonce

	// No signature: rejected, but the nonce still rotates.
	_, outcome, err := dc.URLHandoff(ctx, plan.ID, "")
	require.Error(t, err)
	require.NotEmpty(t, outcome.Nonce)
	assert.NotEqual(t, nonceBefore, outcome.Nonce)

	rec, err = loadRecord(ctx, store, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Nonce, rec.Nonce)
}

func TestDownloadCoordinatorOverLimitIsGone(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	cfg.DefaultDownloads = 1
	cfg.DownloadGraceMS = 100_000 // long enough that deletion won't race this assertion
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)
	verifier := auth.New(store)
	lifecycle := NewLifecycle(ctx, bk, store)
	dc := NewDownloadCoordinator(cfg, bk, store, verifier, lifecycle)

	id, _ := seedUnencryptedDownload(t, ctx, cfg, uc, bk)

	_, _, err := dc.Complete(ctx, id, "")
	require.NoError(t, err)

	_, _, err = dc.URLHandoff(ctx, id, "")
	require.Error(t, err)
}

package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatique/sendcore/kvstore/memstore"
)

func TestRecordManagerDeleteRequiresOwnerMatch(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)
	lifecycle := NewLifecycle(ctx, bk, store)
	rm := NewRecordManager(cfg, bk, store, lifecycle)

	id, owner := seedUnencryptedDownload(t, ctx, cfg, uc, bk)

	err := rm.Delete(ctx, id, "not-the-owner")
	assert.Error(t, err)

	exists, err := bk.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists, "object should survive a rejected delete")

	require.NoError(t, rm.Delete(ctx, id, owner))
	exists, err = bk.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecordManagerParamsClampsDlimit(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)
	lifecycle := NewLifecycle(ctx, bk, store)
	rm := NewRecordManager(cfg, bk, store, lifecycle)

	id, owner := seedUnencryptedDownload(t, ctx, cfg, uc, bk)

	require.NoError(t, rm.Params(ctx, id, owner, ParamsRequest{Dlimit: cfg.MaxDownloads + 1000}))
	info, err := rm.Info(ctx, id, owner)
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxDownloads, info.Dlimit)
}

func TestRecordManagerPasswordMarksEncrypted(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)
	lifecycle := NewLifecycle(ctx, bk, store)
	rm := NewRecordManager(cfg, bk, store, lifecycle)

	id, owner := seedUnencryptedDownload(t, ctx, cfg, uc, bk)

	authKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 16))
	require.NoError(t, rm.Password(ctx, id, owner, PasswordRequest{AuthKey: authKey}))

	rec, err := loadRecord(ctx, store, id)
	require.NoError(t, err)
	assert.True(t, rec.Encrypted)
	assert.Equal(t, authKey, rec.Auth)
	assert.NotEmpty(t, rec.Nonce)
}

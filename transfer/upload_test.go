package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/blob/driver"
	"github.com/thatique/sendcore/blob/fileblob"
	"github.com/thatique/sendcore/kvstore/memstore"
)

func newTestBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	dir := t.TempDir()
	signer := fileblob.NewURLSignerHMAC(&url.URL{Scheme: "http", Host: "localhost", Path: "/signed"}, []byte("test-secret"))
	drv, err := fileblob.OpenBucket(dir, &fileblob.Options{URLSigner: signer})
	require.NoError(t, err)
	return blob.NewBucket(drv)
}

func smallPlanConfig() *Config {
	cfg := DefaultConfig()
	cfg.MultipartThreshold = 1 << 20
	cfg.PublicBaseURL = "https://send.example"
	return cfg
}

func TestUploadCoordinatorPlanAndCompleteSinglePUT(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)

	plan, err := uc.Plan(ctx, PlanRequest{FileSize: 1024, Encrypted: false})
	require.NoError(t, err)
	assert.False(t, plan.Multipart)
	assert.NotEmpty(t, plan.ID)
	assert.NotEmpty(t, plan.Owner)
	assert.NotEmpty(t, plan.URL)

	// A reader racing the upload sees a pending record.
	rec, err := loadRecord(ctx, store, plan.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsPending())

	// Stand in for the client's direct PUT against the signed URL
	// (this test has no HTTP transport to drive that URL through).
	payload := bytes.Repeat([]byte{0xAB}, 1024)
	require.NoError(t, bk.WriteAll(ctx, plan.ID, "application/octet-stream", payload))

	meta := base64.StdEncoding.EncodeToString([]byte(`{"files":[{"name":"x.bin","size":1024,"type":"application/octet-stream"}]}`))
	result, err := uc.Complete(ctx, CompleteRequest{
		ID:         plan.ID,
		Metadata:   meta,
		ActualSize: 1024,
		HaveSize:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, plan.ID, result.ID)
	assert.Contains(t, result.URL, plan.Owner)

	rec, err = loadRecord(ctx, store, plan.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsPending())
	assert.Equal(t, unencryptedAuthValue, rec.Auth)
	assert.Equal(t, int64(1024), rec.Size)
}

func TestUploadCoordinatorPlanMultipart(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	cfg.MultipartThreshold = 10
	cfg.DefaultPartSize = 10
	cfg.MaxParts = 100
	cfg.MaxPartSize = 1000
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)

	plan, err := uc.Plan(ctx, PlanRequest{FileSize: 25, Encrypted: true})
	require.NoError(t, err)
	require.True(t, plan.Multipart)
	assert.NotEmpty(t, plan.UploadID)
	assert.Len(t, plan.Parts, 3)
	for i, p := range plan.Parts {
		assert.Equal(t, int64(i+1), p.PartNumber)
		assert.NotEmpty(t, p.URL)
	}
}

func TestUploadCoordinatorPlanMultipartWritePartsAndComplete(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	cfg.MultipartThreshold = 10
	cfg.DefaultPartSize = 10
	cfg.MaxParts = 100
	cfg.MaxPartSize = 1000
	bk := newTestBucket(t)
	store := memstore.New()

	uc := NewUploadCoordinator(cfg, bk, store)

	plan, err := uc.Plan(ctx, PlanRequest{FileSize: 25, Encrypted: false})
	require.NoError(t, err)
	require.True(t, plan.Multipart)
	require.Len(t, plan.Parts, 3)

	// Stand in for the client PUTting each part's bytes to its signed
	// URL (this test has no HTTP transport to drive those URLs
	// through), deliberately writing out of order to mirror the
	// "any order" guarantee before Complete sorts them.
	partBytes := [][]byte{
		bytes.Repeat([]byte{0xAA}, 10),
		bytes.Repeat([]byte{0xBB}, 10),
		bytes.Repeat([]byte{0xCC}, 5),
	}
	var want bytes.Buffer
	for _, b := range partBytes {
		want.Write(b)
	}

	parts := make([]driver.CompletedPart, len(plan.Parts))
	writeOrder := []int{2, 0, 1}
	for _, i := range writeOrder {
		p := plan.Parts[i]
		etag, _, err := bk.WritePart(ctx, plan.ID, plan.UploadID, int(p.PartNumber), bytes.NewReader(partBytes[i]))
		require.NoError(t, err)
		parts[i] = driver.CompletedPart{PartNumber: int(p.PartNumber), ETag: etag}
	}
	// Complete is handed the parts out of order too; it must sort by
	// PartNumber itself before assembling.
	shuffled := []driver.CompletedPart{parts[2], parts[0], parts[1]}

	meta := base64.StdEncoding.EncodeToString([]byte(`{"files":[{"name":"x.bin","size":25,"type":"application/octet-stream"}]}`))
	result, err := uc.Complete(ctx, CompleteRequest{
		ID:       plan.ID,
		Metadata: meta,
		Parts:    shuffled,
	})
	require.NoError(t, err)
	assert.Equal(t, plan.ID, result.ID)

	rec, err := loadRecord(ctx, store, plan.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsPending())
	assert.Equal(t, int64(25), rec.Size)

	got, err := bk.ReadAll(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
}

func TestUploadCoordinatorCompleteRejectsMissingAuthKeyForEncrypted(t *testing.T) {
	ctx := context.Background()
	cfg := smallPlanConfig()
	bk := newTestBucket(t)
	store := memstore.New()
	uc := NewUploadCoordinator(cfg, bk, store)

	plan, err := uc.Plan(ctx, PlanRequest{FileSize: 16, Encrypted: true})
	require.NoError(t, err)
	require.NoError(t, bk.WriteAll(ctx, plan.ID, "application/octet-stream", bytes.Repeat([]byte{1}, 16)))

	meta := base64.StdEncoding.EncodeToString([]byte(`{"files":[{"name":"x.bin"}]}`))
	_, err = uc.Complete(ctx, CompleteRequest{ID: plan.ID, Metadata: meta, ActualSize: 16, HaveSize: true})
	assert.Error(t, err)
}

func TestComputePartPlanFileTooLarge(t *testing.T) {
	_, err := computePartPlan(1_000_000, 10, 2, 100)
	require.Error(t, err)
}

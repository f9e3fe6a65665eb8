package fileblob

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatique/sendcore/blob/driver"
)

func openTestBucket(t *testing.T) driver.Bucket {
	t.Helper()
	b, err := OpenBucket(t.TempDir(), &Options{
		URLSigner: NewURLSignerHMAC(&url.URL{Scheme: "http", Host: "localhost", Path: "/signed"}, []byte("test-secret")),
	})
	require.NoError(t, err)
	return b
}

func writeObject(t *testing.T, ctx context.Context, b driver.Bucket, key, contentType string, p []byte) {
	t.Helper()
	w, err := b.NewTypedWriter(ctx, key, contentType, &driver.WriterOptions{})
	require.NoError(t, err)
	_, err = w.Write(p)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestBucketWriteReadAttributesDelete(t *testing.T) {
	ctx := context.Background()
	b := openTestBucket(t)
	payload := []byte("the quick brown fox jumps over the lazy dog")

	writeObject(t, ctx, b, "doc", "text/plain", payload)

	attrs, err := b.Attributes(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", attrs.ContentType)
	assert.Equal(t, int64(len(payload)), attrs.Size)

	r, err := b.NewRangeReader(ctx, "doc", 0, -1, &driver.ReaderOptions{})
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = r.Read(got)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, payload, got)

	require.NoError(t, b.Delete(ctx, "doc"))

	_, err = b.Attributes(ctx, "doc")
	assert.Error(t, err)
}

func TestBucketRangeReaderReturnsSlice(t *testing.T) {
	ctx := context.Background()
	b := openTestBucket(t)
	payload := []byte("0123456789abcdefghij")
	writeObject(t, ctx, b, "range-doc", "application/octet-stream", payload)

	r, err := b.NewRangeReader(ctx, "range-doc", 5, 4, &driver.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	got := make([]byte, 4)
	_, err = r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("5678"), got)
}

func TestURLSignerHMACRoundTrip(t *testing.T) {
	signer := NewURLSignerHMAC(&url.URL{Scheme: "http", Host: "localhost", Path: "/signed"}, []byte("test-secret"))
	ctx := context.Background()

	u, err := signer.URLFromKey(ctx, "some/object", &driver.SignedURLOptions{Method: driver.MethodPut, Expiry: time.Minute})
	require.NoError(t, err)

	key, uploadID, part, err := signer.KeyFromURL(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "some/object", key)
	assert.Empty(t, uploadID)
	assert.Zero(t, part)
}

func TestURLSignerHMACRejectsExpired(t *testing.T) {
	signer := NewURLSignerHMAC(&url.URL{Scheme: "http", Host: "localhost", Path: "/signed"}, []byte("test-secret"))
	ctx := context.Background()

	u, err := signer.URLFromKey(ctx, "object", &driver.SignedURLOptions{Method: driver.MethodGet, Expiry: -time.Minute})
	require.NoError(t, err)

	_, _, _, err = signer.KeyFromURL(ctx, u)
	assert.Error(t, err)
}

func TestURLSignerHMACRejectsTamperedSignature(t *testing.T) {
	signer := NewURLSignerHMAC(&url.URL{Scheme: "http", Host: "localhost", Path: "/signed"}, []byte("test-secret"))
	ctx := context.Background()

	u, err := signer.URLFromKey(ctx, "object", &driver.SignedURLOptions{Method: driver.MethodGet, Expiry: time.Minute})
	require.NoError(t, err)

	q := u.Query()
	q.Set("obj", "other-object")
	u.RawQuery = q.Encode()

	_, _, _, err = signer.KeyFromURL(ctx, u)
	assert.Error(t, err)
}

func TestPartURLRoundTrip(t *testing.T) {
	signer := NewURLSignerHMAC(&url.URL{Scheme: "http", Host: "localhost", Path: "/signed"}, []byte("test-secret"))
	ctx := context.Background()

	u, err := signer.URLFromPart(ctx, "big-object", "upload-1", 3, &driver.SignedURLOptions{Method: driver.MethodPut, Expiry: time.Minute})
	require.NoError(t, err)

	key, uploadID, part, err := signer.KeyFromURL(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "big-object", key)
	assert.Equal(t, "upload-1", uploadID)
	assert.Equal(t, 3, part)
}

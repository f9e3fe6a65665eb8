// Package blob is the portable Blob Broker type. It wraps a
// driver.Bucket implementation (s3blob for production, fileblob for
// local development and tests) the same way thatique-awan/blob wraps
// its driver.Bucket: a thin struct around the driver value that adds
// tracing/metrics, error wrapping, and close-tracking, while leaving
// the actual object-store protocol to the driver.
package blob

import (
	"context"
	"io"
	"io/ioutil"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/thatique/sendcore/blob/driver"
	"github.com/thatique/sendcore/internal/trace"
	"github.com/thatique/sendcore/internal/verr"
)

const pkgName = "github.com/thatique/sendcore/blob"

var (
	latencyMeasure = trace.LatencyMeasure(pkgName)

	// OpenCensusViews are the predefined views for the Blob Broker's
	// OpenCensus metrics: call counts and latency.
	OpenCensusViews = trace.Views(pkgName, latencyMeasure)
)

// DefaultSignedURLExpiry is used when SignedURLOptions.Expiry is zero.
const DefaultSignedURLExpiry = 1 * time.Hour

var errClosed = verr.Newf(verr.FailedPrecondition, nil, "blob: Bucket has been closed")

// Bucket provides the operations the Upload Coordinator, Download
// Coordinator, and Lifecycle Policy need from the object store, without
// exposing any particular backend's SDK types.
type Bucket struct {
	b      driver.Bucket
	tracer *trace.Tracer

	mu     sync.RWMutex
	closed bool
}

// NewBucket wraps a driver.Bucket. Callers should use a provider
// subpackage's constructor (s3blob.OpenBucket, fileblob.OpenBucket)
// instead of calling this directly.
func NewBucket(b driver.Bucket) *Bucket {
	return &Bucket{
		b: b,
		tracer: &trace.Tracer{
			Package:        pkgName,
			Provider:       trace.ProviderName(b),
			LatencyMeasure: latencyMeasure,
		},
	}
}

func wrapError(b driver.Bucket, err error) error {
	if err == nil {
		return nil
	}
	if verr.DoNotWrap(err) {
		return err
	}
	return verr.New(b.ErrorCode(err), err, 2, "blob")
}

// retryBackOff bounds the retry loop in do: a handful of short retries
// for a backend blip, not a long-running resilience strategy (callers
// are HTTP request handlers with their own timeouts).
func retryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 1 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 3 * time.Second
	return b
}

func (bk *Bucket) do(ctx context.Context, method string, f func(ctx context.Context) error) error {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return errClosed
	}
	ctx = bk.tracer.Start(ctx, method)
	bo := backoff.WithContext(retryBackOff(), ctx)
	var err error
	for {
		err = f(ctx)
		wrapped := wrapError(bk.b, err)
		if verr.Code(wrapped) != verr.Unavailable {
			err = wrapped
			break
		}
		d := bo.NextBackOff()
		if d == backoff.Stop {
			err = wrapped
			break
		}
		select {
		case <-ctx.Done():
			err = wrapped
		case <-time.After(d):
			continue
		}
		break
	}
	bk.tracer.End(ctx, err)
	return err
}

// SignPutURL returns a URL the client may PUT object bytes to directly.
func (bk *Bucket) SignPutURL(ctx context.Context, key string, expiry time.Duration, contentType string) (url string, err error) {
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}
	err = bk.do(ctx, "SignPutURL", func(ctx context.Context) error {
		var e error
		url, e = bk.b.SignedURL(ctx, key, &driver.SignedURLOptions{
			Method:      driver.MethodPut,
			Expiry:      expiry,
			ContentType: contentType,
		})
		return e
	})
	return url, err
}

// SignGetURL returns a URL the client may GET object bytes from
// directly. If downloadFilename is non-empty, the URL forces a
// Content-Disposition: attachment response header.
func (bk *Bucket) SignGetURL(ctx context.Context, key string, expiry time.Duration, downloadFilename string) (url string, err error) {
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}
	opts := &driver.SignedURLOptions{Method: driver.MethodGet, Expiry: expiry}
	if downloadFilename != "" {
		opts.ContentDisposition = `attachment; filename="` + escapeQuotes(downloadFilename) + `"`
	}
	err = bk.do(ctx, "SignGetURL", func(ctx context.Context) error {
		var e error
		url, e = bk.b.SignedURL(ctx, key, opts)
		return e
	})
	return url, err
}

func escapeQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// StartMultipart begins a multipart upload session.
func (bk *Bucket) StartMultipart(ctx context.Context, key, contentType string) (uploadID string, err error) {
	err = bk.do(ctx, "StartMultipart", func(ctx context.Context) error {
		var e error
		uploadID, e = bk.b.StartMultipart(ctx, key, contentType)
		return e
	})
	return uploadID, err
}

// SignPartURL returns a URL the client may PUT one multipart part to.
func (bk *Bucket) SignPartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (url string, err error) {
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}
	err = bk.do(ctx, "SignPartURL", func(ctx context.Context) error {
		var e error
		url, e = bk.b.SignPartURL(ctx, key, uploadID, partNumber, expiry)
		return e
	})
	return url, err
}

// PartWriter is implemented by drivers that terminate their own signed
// part-upload URLs (fileblob, for local development) rather than
// relying on the client to PUT bytes straight to the object store.
type PartWriter interface {
	WritePart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader) (etag string, size int64, err error)
}

// WritePart persists one multipart part's bytes through the driver,
// for the local fileblob fallback handler that terminates signed part
// URLs itself. Returns verr.Unimplemented if the underlying driver
// doesn't support it (every production object-store driver doesn't
// need to: the client PUTs directly to the store).
func (bk *Bucket) WritePart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader) (etag string, size int64, err error) {
	pw, ok := bk.b.(PartWriter)
	if !ok {
		return "", 0, verr.Newf(verr.Unimplemented, nil, "blob: backend does not support WritePart")
	}
	err = bk.do(ctx, "WritePart", func(ctx context.Context) error {
		var e error
		etag, size, e = pw.WritePart(ctx, key, uploadID, partNumber, r)
		return e
	})
	return etag, size, err
}

// CompleteMultipart finalizes a multipart session and returns the final
// object size.
func (bk *Bucket) CompleteMultipart(ctx context.Context, key, uploadID string, parts []driver.CompletedPart) (size int64, err error) {
	err = bk.do(ctx, "CompleteMultipart", func(ctx context.Context) error {
		var e error
		size, e = bk.b.CompleteMultipart(ctx, key, uploadID, parts)
		return e
	})
	return size, err
}

// AbortMultipart cancels an in-progress multipart session. Swallows
// verr.NotFound: aborting an unknown or already-completed upload is a
// no-op success.
func (bk *Bucket) AbortMultipart(ctx context.Context, key, uploadID string) error {
	err := bk.do(ctx, "AbortMultipart", func(ctx context.Context) error {
		return bk.b.AbortMultipart(ctx, key, uploadID)
	})
	if verr.Code(err) == verr.NotFound {
		return nil
	}
	return err
}

// Delete deletes the object at key. Swallows verr.NotFound.
func (bk *Bucket) Delete(ctx context.Context, key string) error {
	err := bk.do(ctx, "Delete", func(ctx context.Context) error {
		return bk.b.Delete(ctx, key)
	})
	if verr.Code(err) == verr.NotFound {
		return nil
	}
	return err
}

// Size returns the size of the object at key.
func (bk *Bucket) Size(ctx context.Context, key string) (size int64, err error) {
	err = bk.do(ctx, "Size", func(ctx context.Context) error {
		var e error
		size, e = bk.b.Size(ctx, key)
		return e
	})
	return size, err
}

// StreamGet returns a ReadCloser streaming the object's bytes through
// the coordinator. Fallback path for when pre-signed URLs are
// unavailable or disabled.
func (bk *Bucket) StreamGet(ctx context.Context, key string) (io.ReadCloser, error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return nil, errClosed
	}
	r, err := bk.b.NewRangeReader(ctx, key, 0, -1, &driver.ReaderOptions{})
	if err != nil {
		return nil, wrapError(bk.b, err)
	}
	return r, nil
}

// StreamRange returns a ReadCloser streaming length bytes of the
// object at key starting at offset (length < 0 reads to the end), for
// resuming a download that was interrupted partway through.
func (bk *Bucket) StreamRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return nil, errClosed
	}
	r, err := bk.b.NewRangeReader(ctx, key, offset, length, &driver.ReaderOptions{})
	if err != nil {
		return nil, wrapError(bk.b, err)
	}
	return r, nil
}

// ReadAll reads the entire object at key. Intended for tests and small
// fixtures, not production download paths (those stream via StreamGet
// or a signed URL).
func (bk *Bucket) ReadAll(ctx context.Context, key string) ([]byte, error) {
	r, err := bk.StreamGet(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// WriteAll writes p to the object at key in one call. Production
// uploads go through a signed PUT URL or multipart parts (the client
// writes directly to the object store), so this is a convenience for
// tests and for the local fileblob fallback handler that terminates
// signed URLs itself.
func (bk *Bucket) WriteAll(ctx context.Context, key, contentType string, p []byte) error {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return errClosed
	}
	w, err := bk.b.NewTypedWriter(ctx, key, contentType, &driver.WriterOptions{})
	if err != nil {
		return wrapError(bk.b, err)
	}
	if _, err := w.Write(p); err != nil {
		w.Close()
		return wrapError(bk.b, err)
	}
	return wrapError(bk.b, w.Close())
}

// Exists reports whether an object exists at key.
func (bk *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := bk.Attributes(ctx, key)
	if err == nil {
		return true, nil
	}
	if verr.Code(err) == verr.NotFound {
		return false, nil
	}
	return false, err
}

// Attributes returns attributes for the object at key.
func (bk *Bucket) Attributes(ctx context.Context, key string) (a driver.Attributes, err error) {
	err = bk.do(ctx, "Attributes", func(ctx context.Context) error {
		var e error
		a, e = bk.b.Attributes(ctx, key)
		return e
	})
	return a, err
}

// Ping probes the backend for liveness; used as a health.Checker.
func (bk *Bucket) Ping(ctx context.Context) error {
	bk.mu.RLock()
	defer bk.mu.RUnlock()
	if bk.closed {
		return errClosed
	}
	return wrapError(bk.b, bk.b.Ping(ctx))
}

// Close releases resources held by the Bucket.
func (bk *Bucket) Close() error {
	bk.mu.Lock()
	prev := bk.closed
	bk.closed = true
	bk.mu.Unlock()
	if prev {
		return errClosed
	}
	return bk.b.Close()
}

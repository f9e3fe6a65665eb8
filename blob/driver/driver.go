// Package driver defines interfaces to be implemented by Blob Broker
// backends and used by the blob package to interact with them.
//
// Adapted from thatique-awan/blob/driver: the generic portable-bucket
// driver interface is kept, generalized so that SignedURL can mint
// PUT as well as GET URLs (thatique-awan/blob/s3blob.go already called
// opts.Method even though its own SignedURLOptions never declared the
// field — fixed here) and so that a GET URL can carry a
// Content-Disposition override, both of which the Blob Broker needs
// for direct client uploads/downloads.
package driver

import (
	"context"
	"io"
	"time"

	"github.com/thatique/sendcore/internal/verr"
)

// Bucket provides read, write, delete, and presigned-URL operations on
// objects within it, including resumable multipart sessions.
type Bucket interface {
	// ErrorCode returns a code describing an error returned by one of
	// the other methods in this interface.
	ErrorCode(error) verr.ErrorCode

	// Attributes returns attributes for the blob. If the object does not
	// exist, ErrorCode(err) must be verr.NotFound.
	Attributes(ctx context.Context, key string) (Attributes, error)

	// NewRangeReader returns a Reader for part of an object, starting at
	// offset and reading length bytes (or to the end if length < 0).
	NewRangeReader(ctx context.Context, key string, offset, length int64, opts *ReaderOptions) (Reader, error)

	// NewTypedWriter returns a Writer for the object at key, creating or
	// replacing it. contentType must not be empty.
	NewTypedWriter(ctx context.Context, key, contentType string, opts *WriterOptions) (Writer, error)

	// Delete deletes the object at key. ErrorCode(err) must be
	// verr.NotFound if it doesn't exist; Delete is otherwise expected to
	// be called idempotently by callers (driver.Bucket need not swallow
	// NotFound itself -- the Blob Broker does that).
	Delete(ctx context.Context, key string) error

	// SignedURL returns a URL with which a client may perform opts.Method
	// (GET or PUT) against the object at key within opts.Expiry. If
	// opts.ContentDisposition is set (GET only), the returned URL forces
	// that Content-Disposition header on the response.
	SignedURL(ctx context.Context, key string, opts *SignedURLOptions) (string, error)

	// StartMultipart begins a multipart upload session for key and
	// returns its upload id.
	StartMultipart(ctx context.Context, key, contentType string) (uploadID string, err error)

	// SignPartURL returns a URL with which a client may PUT one part of
	// an in-progress multipart session.
	SignPartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error)

	// CompleteMultipart finalizes a multipart session given the ordered
	// list of uploaded parts (ascending PartNumber) and returns the final
	// object's size.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (size int64, err error)

	// AbortMultipart cancels an in-progress multipart session. Must
	// swallow verr.NotFound (unknown or already-completed upload).
	AbortMultipart(ctx context.Context, key, uploadID string) error

	// NewReader/size fallback path: Size returns the size of the object
	// at key, for callers that stream via NewRangeReader rather than a
	// signed URL.
	Size(ctx context.Context, key string) (int64, error)

	// Ping probes the backend for liveness.
	Ping(ctx context.Context) error

	// Close releases any resources held by the Bucket.
	Close() error
}

// ReaderOptions controls Reader behavior. Reserved for future use.
type ReaderOptions struct{}

// Reader reads an object from the blob store.
type Reader interface {
	io.ReadCloser
	Attributes() ReaderAttributes
}

// Writer writes an object to the blob store.
type Writer interface {
	io.WriteCloser
}

// ReaderAttributes is the subset of Attributes available from a Reader.
type ReaderAttributes struct {
	ContentType string
	ModTime     time.Time
	Size        int64
}

// WriterOptions controls behaviors of Writer.
type WriterOptions struct {
	ContentDisposition string
	Metadata           map[string]string
	ContentMD5         []byte
}

// Attributes contains attributes about a blob.
type Attributes struct {
	ContentType        string
	ContentDisposition string
	Metadata           map[string]string
	ModTime            time.Time
	Size               int64
	ETag               string
}

// Method names a signed-URL HTTP method.
type Method string

const (
	MethodGet Method = "GET"
	MethodPut Method = "PUT"
)

// SignedURLOptions sets options for SignedURL.
type SignedURLOptions struct {
	// Method is the HTTP method the signed URL authorizes. Guaranteed
	// non-empty.
	Method Method
	// Expiry sets how long the returned URL is valid for. Guaranteed > 0.
	Expiry time.Duration
	// ContentDisposition, if set, is echoed back by the store as the
	// response Content-Disposition header (GET only).
	ContentDisposition string
	// ContentType, if set, constrains a PUT's Content-Type.
	ContentType string
}

// CompletedPart identifies one uploaded part of a multipart session, as
// reported by the client after it PUTs to a SignPartURL URL.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompletedParts implements sort.Interface by ascending PartNumber, the
// order CompleteMultipart requires.
type CompletedParts []CompletedPart

func (p CompletedParts) Len() int           { return len(p) }
func (p CompletedParts) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p CompletedParts) Less(i, j int) bool { return p[i].PartNumber < p[j].PartNumber }

// Package fileblob implements the Blob Broker's driver.Bucket against
// the local filesystem, for local development and tests where no
// object store is available. Adapted from
// thatique-awan/blob/fileblob/fileblob.go: the escaped-key layout and
// sidecar ".attrs" files are kept, generalized to this module's
// driver.Bucket (StartMultipart/SignPartURL/CompleteMultipart instead
// of that file's proxy-upload NewMultipartWriter/CopyObjectPart) and
// to a URLSigner that can mint both GET and PUT/part URLs.
package fileblob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thatique/sendcore/blob/driver"
	"github.com/thatique/sendcore/internal/verr"
)

var errAttrsExt = fmt.Errorf("fileblob: blob key may not end in %q", attrsExt)

// Options configures OpenBucket.
type Options struct {
	// URLSigner mints and verifies signed URLs. Required to use
	// SignedURL, SignPartURL, or the signed-URL handler returned by
	// NewHandler against this bucket.
	URLSigner URLSigner
}

type bucket struct {
	dir  string
	opts *Options
}

// OpenBucket returns a Blob Broker driver.Bucket rooted at dir, which
// must already exist.
func OpenBucket(dir string, opts *Options) (driver.Bucket, error) {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fileblob: %s is not a directory", dir)
	}
	if opts == nil {
		opts = &Options{}
	}
	return &bucket{dir: dir, opts: opts}, nil
}

func (b *bucket) ProviderName() string { return "file" }
func (b *bucket) Close() error         { return nil }

func (b *bucket) ErrorCode(err error) verr.ErrorCode {
	switch {
	case os.IsNotExist(err):
		return verr.NotFound
	case err == errAttrsExt:
		return verr.InvalidArgument
	default:
		return verr.Unknown
	}
}

func escapeKey(key string) string {
	key = strings.ReplaceAll(key, "..", "__")
	if os.PathSeparator != '/' {
		key = strings.ReplaceAll(key, "/", string(os.PathSeparator))
	}
	return key
}

func (b *bucket) path(key string) (string, error) {
	p := filepath.Join(b.dir, escapeKey(key))
	if strings.HasSuffix(p, attrsExt) {
		return "", errAttrsExt
	}
	return p, nil
}

func (b *bucket) Attributes(ctx context.Context, key string) (driver.Attributes, error) {
	path, err := b.path(key)
	if err != nil {
		return driver.Attributes{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return driver.Attributes{}, err
	}
	xa, err := getAttrs(path)
	if err != nil {
		return driver.Attributes{}, err
	}
	return driver.Attributes{
		ContentType:        xa.ContentType,
		ContentDisposition: xa.ContentDisposition,
		Metadata:           xa.Metadata,
		ModTime:            info.ModTime(),
		Size:               info.Size(),
		ETag:               xa.ETag,
	}, nil
}

type reader struct {
	r     io.Reader
	c     io.Closer
	attrs driver.ReaderAttributes
}

func (r *reader) Read(p []byte) (int, error)          { return r.r.Read(p) }
func (r *reader) Close() error                         { return r.c.Close() }
func (r *reader) Attributes() driver.ReaderAttributes { return r.attrs }

func (b *bucket) NewRangeReader(ctx context.Context, key string, offset, length int64, _ *driver.ReaderOptions) (driver.Reader, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	xa, err := getAttrs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	var r io.Reader = f
	if length >= 0 {
		r = io.LimitReader(r, length)
	}
	return &reader{r: r, c: f, attrs: driver.ReaderAttributes{
		ContentType: xa.ContentType,
		ModTime:     info.ModTime(),
		Size:        info.Size(),
	}}, nil
}

type writer struct {
	ctx     context.Context
	f       *os.File
	path    string
	attrs   xattrs
	md5hash hash.Hash
}

func (w *writer) Write(p []byte) (int, error) {
	if _, err := w.md5hash.Write(p); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *writer) Close() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	defer os.Remove(w.f.Name())
	if err := w.ctx.Err(); err != nil {
		return err
	}
	sum := w.md5hash.Sum(nil)
	w.attrs.MD5 = sum
	w.attrs.ETag = hex.EncodeToString(sum)
	if err := setAttrs(w.path, w.attrs); err != nil {
		return err
	}
	if err := os.Rename(w.f.Name(), w.path); err != nil {
		os.Remove(w.path + attrsExt)
		return err
	}
	return nil
}

func (b *bucket) NewTypedWriter(ctx context.Context, key, contentType string, opts *driver.WriterOptions) (driver.Writer, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "fileblob")
	if err != nil {
		return nil, err
	}
	xa := xattrs{ContentType: contentType}
	if opts != nil {
		xa.ContentDisposition = opts.ContentDisposition
		xa.Metadata = opts.Metadata
	}
	return &writer{ctx: ctx, f: f, path: path, attrs: xa, md5hash: md5.New()}, nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	if err := os.Remove(path + attrsExt); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *bucket) Size(ctx context.Context, key string) (int64, error) {
	path, err := b.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *bucket) Ping(ctx context.Context) error {
	_, err := os.Stat(b.dir)
	return err
}

func (b *bucket) SignedURL(ctx context.Context, key string, opts *driver.SignedURLOptions) (string, error) {
	if b.opts.URLSigner == nil {
		return "", fmt.Errorf("fileblob: SignedURL: bucket has no URLSigner configured")
	}
	u, err := b.opts.URLSigner.URLFromKey(ctx, key, opts)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (b *bucket) StartMultipart(ctx context.Context, key, contentType string) (string, error) {
	uploadID := newUploadID()
	dir := b.multipartDir(key, uploadID)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", err
	}
	meta := multipartMeta{Key: key, ContentType: contentType}
	if err := writeMultipartMeta(dir, meta); err != nil {
		return "", err
	}
	return uploadID, nil
}

func (b *bucket) multipartDir(key, uploadID string) string {
	return filepath.Join(b.dir, multipartTmpDir, escapeKey(key)+".parts", uploadID)
}

func (b *bucket) SignPartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	if b.opts.URLSigner == nil {
		return "", fmt.Errorf("fileblob: SignPartURL: bucket has no URLSigner configured")
	}
	opts := &driver.SignedURLOptions{Method: driver.MethodPut, Expiry: expiry}
	u, err := b.opts.URLSigner.URLFromPart(ctx, key, uploadID, partNumber, opts)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// WritePart is called by the local dev HTTP handler that terminates
// signed part-upload URLs (there being no real object store to do it
// for us) to persist one part's bytes.
func (b *bucket) WritePart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader) (etag string, size int64, err error) {
	dir := b.multipartDir(key, uploadID)
	if _, err := os.Stat(filepath.Join(dir, multipartMetaFile)); err != nil {
		return "", 0, err
	}
	partPath := filepath.Join(dir, partFileName(partNumber))
	f, err := os.Create(partPath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := md5.New()
	n, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func (b *bucket) CompleteMultipart(ctx context.Context, key, uploadID string, parts []driver.CompletedPart) (int64, error) {
	dir := b.multipartDir(key, uploadID)
	meta, err := readMultipartMeta(dir)
	if err != nil {
		return 0, err
	}
	if meta.Key != key {
		return 0, fmt.Errorf("fileblob: CompleteMultipart: upload id %s is not for key %s", uploadID, key)
	}

	sorted := make(driver.CompletedParts, len(parts))
	copy(sorted, parts)

	path, err := b.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return 0, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "fileblob")
	if err != nil {
		return 0, err
	}
	h := md5.New()
	var total int64
	for _, p := range sorted {
		partPath := filepath.Join(dir, partFileName(p.PartNumber))
		pf, err := os.Open(partPath)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return 0, verr.Newf(verr.InvalidArgument, err, "fileblob: missing part %d", p.PartNumber)
		}
		n, err := io.Copy(io.MultiWriter(f, h), pf)
		pf.Close()
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return 0, err
		}
		total += n
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	xa := xattrs{ContentType: meta.ContentType, ETag: hex.EncodeToString(h.Sum(nil))}
	if err := setAttrs(path, xa); err != nil {
		return 0, err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(path + attrsExt)
		return 0, err
	}
	os.RemoveAll(dir)
	return total, nil
}

func (b *bucket) AbortMultipart(ctx context.Context, key, uploadID string) error {
	dir := b.multipartDir(key, uploadID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(dir)
}

// Package s3blob implements the Blob Broker's driver.Bucket against an
// S3-compatible object store via minio-go/v7. It is adapted from
// thatique-awan/blob/s3blob.go and blob/minioblob/minioblob.go (pinned
// to minio-go v6 and v7 respectively there), upgraded fully to v7 for
// its Core multipart API and context-aware Presign, and extended with
// the multipart-session and PUT-presigning operations a generic blob
// store's driver.Bucket never needed.
package s3blob

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/thatique/sendcore/blob/driver"
	"github.com/thatique/sendcore/internal/verr"
)

// Options configures OpenBucket.
type Options struct {
	// UseSSL selects https (true) or http (false) to the endpoint.
	UseSSL bool
}

type bucket struct {
	name   string
	client *minio.Client
	core   *minio.Core
}

// OpenBucket returns a Blob Broker driver backed by an S3-compatible
// store reachable at endpoint (host:port, no scheme) using the given
// static credentials.
func OpenBucket(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, opts *Options) (driver.Bucket, error) {
	if opts == nil {
		opts = &Options{}
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  staticCreds(accessKey, secretKey),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	core := &minio.Core{Client: client}
	return &bucket{name: bucketName, client: client, core: core}, nil
}

func (b *bucket) ProviderName() string { return "s3" }

func (b *bucket) Close() error { return nil }

func (b *bucket) ErrorCode(err error) verr.ErrorCode {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied":
		return verr.PermissionDenied
	case "NoSuchKey", "NotFound", "NoSuchUpload":
		return verr.NotFound
	case "InvalidPart", "InvalidPartOrder":
		return verr.InvalidArgument
	case "EntityTooSmall":
		return verr.InvalidArgument
	case "":
		return verr.Unavailable
	default:
		return verr.Unknown
	}
}

func (b *bucket) Attributes(ctx context.Context, key string) (driver.Attributes, error) {
	info, err := b.client.StatObject(ctx, b.name, key, minio.StatObjectOptions{})
	if err != nil {
		return driver.Attributes{}, err
	}
	return driver.Attributes{
		ContentType:        info.ContentType,
		ContentDisposition: info.Metadata.Get("Content-Disposition"),
		ModTime:            info.LastModified,
		Size:               info.Size,
		ETag:               info.ETag,
	}, nil
}

func (b *bucket) NewRangeReader(ctx context.Context, key string, offset, length int64, _ *driver.ReaderOptions) (driver.Reader, error) {
	opts := minio.GetObjectOptions{}
	if offset > 0 || length >= 0 {
		var end int64 = -1
		if length >= 0 {
			end = offset + length - 1
		}
		if err := opts.SetRange(offset, end); err != nil {
			return nil, err
		}
	}
	obj, err := b.client.GetObject(ctx, b.name, key, opts)
	if err != nil {
		return nil, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, err
	}
	return &reader{obj: obj, attrs: driver.ReaderAttributes{
		ContentType: info.ContentType,
		ModTime:     info.LastModified,
		Size:        info.Size,
	}}, nil
}

type reader struct {
	obj   *minio.Object
	attrs driver.ReaderAttributes
}

func (r *reader) Read(p []byte) (int, error)       { return r.obj.Read(p) }
func (r *reader) Close() error                      { return r.obj.Close() }
func (r *reader) Attributes() driver.ReaderAttributes { return r.attrs }

func (b *bucket) NewTypedWriter(ctx context.Context, key, contentType string, opts *driver.WriterOptions) (driver.Writer, error) {
	pr, pw := newPipe()
	putOpts := minio.PutObjectOptions{ContentType: contentType}
	if opts != nil {
		putOpts.ContentDisposition = opts.ContentDisposition
		putOpts.UserMetadata = opts.Metadata
	}
	go func() {
		_, err := b.client.PutObject(ctx, b.name, key, pr, -1, putOpts)
		pr.CloseWithError(err)
	}()
	return pw, nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{})
}

func (b *bucket) Size(ctx context.Context, key string) (int64, error) {
	info, err := b.client.StatObject(ctx, b.name, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (b *bucket) Ping(ctx context.Context) error {
	_, err := b.client.BucketExists(ctx, b.name)
	return err
}

func (b *bucket) SignedURL(ctx context.Context, key string, opts *driver.SignedURLOptions) (string, error) {
	reqParams := url.Values{}
	if opts.ContentDisposition != "" {
		reqParams.Set("response-content-disposition", opts.ContentDisposition)
	}
	u, err := b.client.Presign(ctx, string(opts.Method), b.name, key, opts.Expiry, reqParams)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (b *bucket) StartMultipart(ctx context.Context, key, contentType string) (string, error) {
	return b.core.NewMultipartUpload(ctx, b.name, key, minio.PutObjectOptions{ContentType: contentType})
}

func (b *bucket) SignPartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	reqParams := url.Values{}
	reqParams.Set("partNumber", strconv.Itoa(partNumber))
	reqParams.Set("uploadId", uploadID)
	u, err := b.client.Presign(ctx, "PUT", b.name, key, expiry, reqParams)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (b *bucket) CompleteMultipart(ctx context.Context, key, uploadID string, parts []driver.CompletedPart) (int64, error) {
	sorted := make(driver.CompletedParts, len(parts))
	copy(sorted, parts)
	sort.Sort(sorted)

	cp := make([]minio.CompletePart, len(sorted))
	for i, p := range sorted {
		cp[i] = minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	info, err := b.core.CompleteMultipartUpload(ctx, b.name, key, uploadID, cp, minio.PutObjectOptions{})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (b *bucket) AbortMultipart(ctx context.Context, key, uploadID string) error {
	err := b.core.AbortMultipartUpload(ctx, b.name, key, uploadID)
	if err != nil && b.ErrorCode(err) == verr.NotFound {
		return nil
	}
	return err
}

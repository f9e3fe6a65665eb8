// Adapted from thatique-awan/blob/fileblob/urlsigner.go: the same HMAC
// query-parameter signing scheme, extended with URLFromPart/KeyFromURL
// part fields so a fileblob-backed local dev server can stand in for
// the presigned multipart-part URLs a real object store would mint.
package fileblob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/thatique/sendcore/blob/driver"
)

// URLSigner mints and verifies signed URLs for a fileblob bucket.
type URLSigner interface {
	// URLFromKey signs a GET or whole-object PUT URL for key.
	URLFromKey(ctx context.Context, key string, opts *driver.SignedURLOptions) (*url.URL, error)

	// URLFromPart signs a PUT URL for one multipart part.
	URLFromPart(ctx context.Context, key, uploadID string, partNumber int, opts *driver.SignedURLOptions) (*url.URL, error)

	// KeyFromURL validates a signed URL and returns the key, upload id
	// (empty for a whole-object URL), and part number (0 for a
	// whole-object URL) it authorizes.
	KeyFromURL(ctx context.Context, surl *url.URL) (key, uploadID string, partNumber int, err error)
}

// URLSignerHMAC signs URLs with an HMAC-SHA256 over the object key,
// expiry, method, and (for parts) upload id and part number.
type URLSignerHMAC struct {
	baseURL   *url.URL
	secretKey []byte
}

// NewURLSignerHMAC creates a URLSignerHMAC rooted at baseURL. Panics if
// secretKey is empty.
func NewURLSignerHMAC(baseURL *url.URL, secretKey []byte) *URLSignerHMAC {
	if len(secretKey) == 0 {
		panic("fileblob: NewURLSignerHMAC: secretKey is required")
	}
	uc := *baseURL
	return &URLSignerHMAC{baseURL: &uc, secretKey: secretKey}
}

func (h *URLSignerHMAC) sign(q url.Values) string {
	signed := url.Values{}
	signed.Set("obj", q.Get("obj"))
	signed.Set("expiry", q.Get("expiry"))
	signed.Set("method", q.Get("method"))
	signed.Set("upload", q.Get("upload"))
	signed.Set("part", q.Get("part"))
	mac := hmac.New(sha256.New, h.secretKey)
	mac.Write([]byte(signed.Encode()))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (h *URLSignerHMAC) urlFor(key, uploadID string, partNumber int, opts *driver.SignedURLOptions) *url.URL {
	u := *h.baseURL
	q := u.Query()
	q.Set("obj", key)
	q.Set("expiry", strconv.FormatInt(time.Now().Add(opts.Expiry).Unix(), 10))
	q.Set("method", string(opts.Method))
	if uploadID != "" {
		q.Set("upload", uploadID)
		q.Set("part", strconv.Itoa(partNumber))
	}
	q.Set("signature", h.sign(q))
	u.RawQuery = q.Encode()
	return &u
}

// URLFromKey implements URLSigner.
func (h *URLSignerHMAC) URLFromKey(ctx context.Context, key string, opts *driver.SignedURLOptions) (*url.URL, error) {
	return h.urlFor(key, "", 0, opts), nil
}

// URLFromPart implements URLSigner.
func (h *URLSignerHMAC) URLFromPart(ctx context.Context, key, uploadID string, partNumber int, opts *driver.SignedURLOptions) (*url.URL, error) {
	return h.urlFor(key, uploadID, partNumber, opts), nil
}

// KeyFromURL implements URLSigner.
func (h *URLSignerHMAC) KeyFromURL(ctx context.Context, surl *url.URL) (string, string, int, error) {
	q := surl.Query()
	exp, err := strconv.ParseInt(q.Get("expiry"), 10, 64)
	if err != nil || time.Now().Unix() > exp {
		return "", "", 0, errors.New("fileblob: signed URL is expired or malformed")
	}
	expected := h.sign(q)
	if !hmac.Equal([]byte(q.Get("signature")), []byte(expected)) {
		return "", "", 0, errors.New("fileblob: signed URL signature mismatch")
	}
	partNumber := 0
	if p := q.Get("part"); p != "" {
		partNumber, _ = strconv.Atoi(p)
	}
	return q.Get("obj"), q.Get("upload"), partNumber, nil
}

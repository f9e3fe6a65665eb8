package fileblob

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/thatique/sendcore/blob/driver"
)

// partWriter is implemented by fileblob's bucket (and nothing else --
// real object stores take part bytes over the wire from the client, so
// driver.Bucket itself has no such method). NewHandler type-asserts for
// it to serve multipart PUTs; a driver.Bucket that doesn't implement it
// only ever sees whole-object signed URLs.
type partWriter interface {
	WritePart(ctx context.Context, key, uploadID string, partNumber int, r io.Reader) (etag string, size int64, err error)
}

// NewHandler returns the local dev HTTP terminus for signed URLs minted
// by signer against b: the handler fileblob's own doc comments promise
// but that, until now, nothing actually registered. A real object store
// needs no such thing -- the client PUTs straight to S3 -- so this only
// matters for the file-backed provider used in local development and
// tests.
func NewHandler(b driver.Bucket, signer URLSigner) http.Handler {
	return &handler{b: b, signer: signer}
}

type handler struct {
	b      driver.Bucket
	signer URLSigner
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, uploadID, partNumber, err := h.signer.KeyFromURL(r.Context(), r.URL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	defer r.Body.Close()

	if uploadID != "" {
		pw, ok := h.b.(partWriter)
		if !ok {
			http.Error(w, "fileblob: bucket does not support part uploads", http.StatusNotImplemented)
			return
		}
		etag, _, err := pw.WritePart(r.Context(), key, uploadID, partNumber, r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", `"`+etag+`"`)
		w.WriteHeader(http.StatusOK)
		return
	}

	wr, err := h.b.NewTypedWriter(r.Context(), key, r.Header.Get("Content-Type"), &driver.WriterOptions{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(wr, r.Body); err != nil {
		wr.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := wr.Close(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if attrs, err := h.b.Attributes(r.Context(), key); err == nil && attrs.ETag != "" {
		etag := attrs.ETag
		if _, decErr := hex.DecodeString(etag); decErr == nil {
			w.Header().Set("ETag", `"`+etag+`"`)
		}
	}
	w.WriteHeader(http.StatusOK)
}

package transfer

import (
	"context"
	"strconv"

	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/kvstore"
)

// Field names as stored in the Metadata Store Adapter, one hash per
// file id.
const (
	FieldOwner      = "owner"
	FieldEncrypted  = "encrypted"
	FieldAuth       = "auth"
	FieldNonce      = "nonce"
	FieldMetadata   = "metadata"
	FieldDl         = "dl"
	FieldDlimit     = "dlimit"
	FieldFileSize   = "fileSize"
	FieldSize       = "size"
	FieldPrefix     = "prefix"
	FieldUploadID   = "uploadId"
	FieldMultipart  = "multipart"
	FieldNumParts   = "numParts"
	FieldContentType = "contentType"
)

// unencryptedAuthValue is written to FieldAuth for unencrypted files;
// its presence (rather than an empty string) lets a reader distinguish
// "plaintext, no key needed" from "pending, key not written yet".
const unencryptedAuthValue = "unencrypted"

// Record is the in-memory view of one File Record, as read back
// from the Metadata Store Adapter.
type Record struct {
	ID          string
	Owner       string
	Encrypted   bool
	Auth        string
	Nonce       string
	Metadata    string
	Dl          int64
	Dlimit      int64
	FileSize    int64
	Size        int64
	Prefix      int64
	UploadID    string
	Multipart   bool
	NumParts    int64
	ContentType string
}

// IsPending reports whether the record has not yet completed upload
// (metadata/auth not yet written). A reader that observes this must
// treat the file as not-yet-available.
func (r *Record) IsPending() bool {
	return r.Metadata == "" || r.Auth == ""
}

// IsOverLimit reports whether the record's download counter has
// reached or exceeded its limit.
func (r *Record) IsOverLimit() bool {
	return r.Dlimit > 0 && r.Dl >= r.Dlimit
}

// loadRecord reads and parses the full hash for id. Returns
// verr.NotFound if the record does not exist.
func loadRecord(ctx context.Context, store kvstore.Store, id string) (*Record, error) {
	fields, err := store.GetAll(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, verr.Newf(verr.NotFound, nil, "transfer: record %s not found", id)
	}
	r := &Record{
		ID:          id,
		Owner:       fields[FieldOwner],
		Encrypted:   fields[FieldEncrypted] == "true",
		Auth:        fields[FieldAuth],
		Nonce:       fields[FieldNonce],
		Metadata:    fields[FieldMetadata],
		Dl:          parseInt64(fields[FieldDl]),
		Dlimit:      parseInt64(fields[FieldDlimit]),
		FileSize:    parseInt64(fields[FieldFileSize]),
		Size:        parseInt64(fields[FieldSize]),
		Prefix:      parseInt64(fields[FieldPrefix]),
		UploadID:    fields[FieldUploadID],
		Multipart:   fields[FieldMultipart] == "true",
		NumParts:    parseInt64(fields[FieldNumParts]),
		ContentType: fields[FieldContentType],
	}
	return r, nil
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

package transfer

import (
	"context"
	"strconv"

	"github.com/thatique/sendcore/auth"
	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/kvstore"
)

// RecordManager implements the owner-token-gated mutation endpoints:
// delete, params, info, password. Each checks auth.CheckOwner against
// the record's stored owner field before acting; none of them touch
// the nonce challenge-response handshake, which is a separate, download
// side primitive.
type RecordManager struct {
	cfg       *Config
	bk        *blob.Bucket
	store     kvstore.Store
	lifecycle *Lifecycle
}

// NewRecordManager returns a RecordManager.
func NewRecordManager(cfg *Config, bk *blob.Bucket, store kvstore.Store, lifecycle *Lifecycle) *RecordManager {
	return &RecordManager{cfg: cfg, bk: bk, store: store, lifecycle: lifecycle}
}

// loadAndCheckOwner loads a record and checks owner against it. A
// missing record is reported the same as an owner mismatch
// (PermissionDenied, not NotFound): a repeat call against an
// already-deleted record must not reveal that the record is gone, so
// it fails the same way a wrong owner token would.
func (m *RecordManager) loadAndCheckOwner(ctx context.Context, id, owner string) (*Record, error) {
	rec, err := loadRecord(ctx, m.store, id)
	if verr.Code(err) == verr.NotFound {
		return nil, verr.Newf(verr.PermissionDenied, nil, "transfer: owner token mismatch for %s", id)
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckOwner(rec.Owner, owner) {
		return nil, verr.Newf(verr.PermissionDenied, nil, "transfer: owner token mismatch for %s", id)
	}
	return rec, nil
}

// Delete implements POST /delete/{id}: owner-token gated deletion
// of the record, its blob, and any outstanding multipart session
//.
func (m *RecordManager) Delete(ctx context.Context, id, owner string) error {
	rec, err := m.loadAndCheckOwner(ctx, id, owner)
	if err != nil {
		return err
	}
	m.lifecycle.Cancel(id)
	if rec.Multipart && rec.UploadID != "" {
		if err := m.bk.AbortMultipart(ctx, id, rec.UploadID); err != nil {
			return err
		}
	}
	return m.lifecycle.Delete(ctx, id)
}

// ParamsRequest is the input to Params.
type ParamsRequest struct {
	Dlimit int64
}

// Params implements POST /params/{id}: mutate dlimit, clamped to
// the same bounds as Plan.
func (m *RecordManager) Params(ctx context.Context, id, owner string, req ParamsRequest) error {
	if _, err := m.loadAndCheckOwner(ctx, id, owner); err != nil {
		return err
	}
	dlimit := req.Dlimit
	if dlimit <= 0 {
		dlimit = m.cfg.DefaultDownloads
	}
	if dlimit > m.cfg.MaxDownloads {
		dlimit = m.cfg.MaxDownloads
	}
	return m.store.SetFields(ctx, id, map[string]string{FieldDlimit: strconv.FormatInt(dlimit, 10)})
}

// InfoResult is the output of Info.
type InfoResult struct {
	Dl     int64 `json:"dl"`
	Dlimit int64 `json:"dlimit"`
	TTL    int64 `json:"ttl"`
}

// Info implements POST /info/{id}.
func (m *RecordManager) Info(ctx context.Context, id, owner string) (*InfoResult, error) {
	rec, err := m.loadAndCheckOwner(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	ttl, ok, err := m.store.TTL(ctx, id)
	if err != nil {
		return nil, err
	}
	var ttlSeconds int64
	if ok && ttl > 0 {
		ttlSeconds = int64(ttl.Seconds())
	}
	return &InfoResult{Dl: rec.Dl, Dlimit: rec.Dlimit, TTL: ttlSeconds}, nil
}

// PasswordRequest is the input to Password.
type PasswordRequest struct {
	AuthKey string
}

// Password implements POST /password/{id}: replace the record's
// auth key, marking it encrypted if it wasn't already. A fresh nonce
// is minted so the new key takes effect immediately on the next
// challenge-response round.
func (m *RecordManager) Password(ctx context.Context, id, owner string, req PasswordRequest) error {
	if _, err := m.loadAndCheckOwner(ctx, id, owner); err != nil {
		return err
	}
	if req.AuthKey == "" {
		return verr.Newf(verr.InvalidArgument, nil, "transfer: authKey is required")
	}
	nonce, err := newNonce()
	if err != nil {
		return verr.New(verr.Internal, err, 1, "transfer: mint nonce")
	}
	return m.store.SetFields(ctx, id, map[string]string{
		FieldEncrypted: "true",
		FieldAuth:      req.AuthKey,
		FieldNonce:     nonce,
	})
}

package transfer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/thatique/sendcore/auth"
	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/kvstore"
)

// DownloadCoordinator handles URL handoff, stream fallback, completion
// accounting, and metadata fetch for a download. Like UploadCoordinator it
// is stateless across requests; the only state it creates in-process
// is the grace-window timer scheduled by Lifecycle after a download
// exhausts its limit, which is tolerant of being lost on restart
//.
type DownloadCoordinator struct {
	cfg       *Config
	bk        *blob.Bucket
	store     kvstore.Store
	verifier  *auth.Verifier
	lifecycle *Lifecycle
}

// NewDownloadCoordinator returns a DownloadCoordinator.
func NewDownloadCoordinator(cfg *Config, bk *blob.Bucket, store kvstore.Store, verifier *auth.Verifier, lifecycle *Lifecycle) *DownloadCoordinator {
	return &DownloadCoordinator{cfg: cfg, bk: bk, store: store, verifier: verifier, lifecycle: lifecycle}
}

// AuthOutcome carries the result of a challenge-response check,
// including the fresh nonce the caller must always echo back via
// WWW-Authenticate regardless of whether auth succeeded.
type AuthOutcome struct {
	Nonce string
	Err   error
}

// authenticate runs the challenge-response protocol for a protected read against an
// encrypted record: verify the supplied signature (if any) against
// the currently-stored nonce, then unconditionally rotate the nonce.
// Callers must set WWW-Authenticate to outcome.Nonce on every response
// path, success or failure.
func (d *DownloadCoordinator) authenticate(ctx context.Context, rec *Record, sig string) AuthOutcome {
	if !rec.Encrypted {
		return AuthOutcome{}
	}
	var verifyErr error
	if sig == "" {
		verifyErr = verr.Newf(verr.Unauthenticated, nil, "transfer: Authorization header required for encrypted file")
	} else {
		verifyErr = d.verifier.Verify(ctx, rec.ID, sig)
	}
	nonce, err := d.verifier.Challenge(ctx, rec.ID)
	if err != nil {
		return AuthOutcome{Err: err}
	}
	return AuthOutcome{Nonce: nonce, Err: verifyErr}
}

// checkPending applies the pending-record read gate: a record seen
// before metadata/auth are written must refuse reads, reporting
// NotFound to a request that never attempted authentication
// (unencrypted, or no signature supplied) so existence isn't leaked,
// and the real outcome of authenticate -- always Unauthenticated,
// since auth/nonce aren't seeded until Complete -- to a request that
// did, so the client gets a 401 with a challenge instead of a blanket
// 404. Complete mints its own nonce, replacing the one handed out here.
func (d *DownloadCoordinator) checkPending(ctx context.Context, rec *Record, sig string) AuthOutcome {
	notYetAvailable := verr.Newf(verr.NotFound, nil, "transfer: record %s is not yet available", rec.ID)
	if !rec.Encrypted || sig == "" {
		return AuthOutcome{Err: notYetAvailable}
	}
	outcome := d.authenticate(ctx, rec, sig)
	if outcome.Err == nil {
		outcome.Err = notYetAvailable
	}
	return outcome
}

// URLHandoffResult is the output of URLHandoff, serialized as the
// response body of GET /download/url/{id}.
type URLHandoffResult struct {
	UseSignedURL bool   `json:"useSignedUrl"`
	URL          string `json:"url,omitempty"`
	Dl           int64  `json:"dl"`
	Dlimit       int64  `json:"dlimit"`
}

// URLHandoff hands the caller a pre-signed URL for a direct object-store download.
func (d *DownloadCoordinator) URLHandoff(ctx context.Context, id, sig string) (*URLHandoffResult, AuthOutcome, error) {
	rec, err := loadRecord(ctx, d.store, id)
	if err != nil {
		return nil, AuthOutcome{}, err
	}
	if rec.IsPending() {
		outcome := d.checkPending(ctx, rec, sig)
		return nil, outcome, outcome.Err
	}
	outcome := d.authenticate(ctx, rec, sig)
	if outcome.Err != nil {
		return nil, outcome, outcome.Err
	}
	if rec.IsOverLimit() {
		return nil, outcome, verr.Newf(verr.Gone, nil, "transfer: download limit reached for %s", id)
	}

	filename := filenameFromMetadata(rec.Metadata, rec.Encrypted)
	url, err := d.bk.SignGetURL(ctx, id, signedURLTTL(d.cfg), filename)
	if err != nil {
		return nil, outcome, err
	}
	return &URLHandoffResult{UseSignedURL: true, URL: url, Dl: rec.Dl, Dlimit: rec.Dlimit}, outcome, nil
}

// Stream is the fallback path where the coordinator streams object
// bytes itself rather than handing off a signed URL.
func (d *DownloadCoordinator) Stream(ctx context.Context, id, sig string) (io.ReadCloser, AuthOutcome, error) {
	rec, err := loadRecord(ctx, d.store, id)
	if err != nil {
		return nil, AuthOutcome{}, err
	}
	if rec.IsPending() {
		outcome := d.checkPending(ctx, rec, sig)
		return nil, outcome, outcome.Err
	}
	outcome := d.authenticate(ctx, rec, sig)
	if outcome.Err != nil {
		return nil, outcome, outcome.Err
	}
	if rec.IsOverLimit() {
		return nil, outcome, verr.Newf(verr.Gone, nil, "transfer: download limit reached for %s", id)
	}
	r, err := d.bk.StreamGet(ctx, id)
	return r, outcome, err
}

// RangeSpec resolves an HTTP Range header against the size of the
// object it applies to. *httprange.HTTPRangeSpec satisfies this
// without transfer importing the httpapi-side parsing package.
type RangeSpec interface {
	GetOffsetLength(resourceSize int64) (start, length int64, err error)
}

// StreamRange is Stream restricted to a byte range, for a client
// resuming an interrupted download (HTTP Range, RFC 7233). spec is
// resolved against the record's size under the same authentication
// pass that guards Stream, so a client's single-use signature is
// consumed exactly once per request regardless of whether it carries
// a Range header. Returns the resolved start offset and the record's
// total size, both needed for the Content-Range response header.
// Does not double-count against dlimit -- callers that resume a range
// request still call Complete once the whole object has been read.
func (d *DownloadCoordinator) StreamRange(ctx context.Context, id, sig string, spec RangeSpec) (body io.ReadCloser, start, size int64, outcome AuthOutcome, err error) {
	rec, err := loadRecord(ctx, d.store, id)
	if err != nil {
		return nil, 0, 0, AuthOutcome{}, err
	}
	if rec.IsPending() {
		outcome := d.checkPending(ctx, rec, sig)
		return nil, 0, 0, outcome, outcome.Err
	}
	outcome = d.authenticate(ctx, rec, sig)
	if outcome.Err != nil {
		return nil, 0, 0, outcome, outcome.Err
	}
	if rec.IsOverLimit() {
		return nil, 0, 0, outcome, verr.Newf(verr.Gone, nil, "transfer: download limit reached for %s", id)
	}
	start, length, err := spec.GetOffsetLength(rec.Size)
	if err != nil {
		return nil, 0, 0, outcome, verr.Newf(verr.InvalidArgument, err, "transfer: invalid range for %s", id)
	}
	body, err = d.bk.StreamRange(ctx, id, start, length)
	return body, start, rec.Size, outcome, err
}

// DownloadCompleteResult is the output of Complete, serialized as the response
// body of POST /download/complete/{id}.
type DownloadCompleteResult struct {
	Deleted bool  `json:"deleted"`
	Dl      int64 `json:"dl"`
	Dlimit  int64 `json:"dlimit"`
}

// Complete atomically increments the download counter and, if the
// limit is reached, schedules deletion with a grace window.
func (d *DownloadCoordinator) Complete(ctx context.Context, id, sig string) (*DownloadCompleteResult, AuthOutcome, error) {
	rec, err := loadRecord(ctx, d.store, id)
	if err != nil {
		return nil, AuthOutcome{}, err
	}
	outcome := d.authenticate(ctx, rec, sig)
	if outcome.Err != nil {
		return nil, outcome, outcome.Err
	}

	newDl, err := d.store.Incr(ctx, id, FieldDl, 1)
	if err != nil {
		return nil, outcome, err
	}
	deleted := rec.Dlimit > 0 && newDl >= rec.Dlimit
	if deleted {
		d.lifecycle.ScheduleDeletion(id, time.Duration(d.cfg.DownloadGraceMS)*time.Millisecond)
	}
	return &DownloadCompleteResult{Deleted: deleted, Dl: newDl, Dlimit: rec.Dlimit}, outcome, nil
}

// PreIncrementForDirect implements the ordering guarantee for the
// direct (302-redirect) download path: the counter must be
// incremented *before* the redirect is issued.
func (d *DownloadCoordinator) PreIncrementForDirect(ctx context.Context, rec *Record) (newDl int64, deleted bool, err error) {
	newDl, err = d.store.Incr(ctx, rec.ID, FieldDl, 1)
	if err != nil {
		return 0, false, err
	}
	deleted = rec.Dlimit > 0 && newDl >= rec.Dlimit
	if deleted {
		d.lifecycle.ScheduleDeletion(rec.ID, time.Duration(d.cfg.DownloadGraceMS)*time.Millisecond)
	}
	return newDl, deleted, nil
}

// MetadataResult is the output of Metadata, serialized as the response
// body of GET /metadata/{id}.
type MetadataResult struct {
	Metadata  string `json:"metadata"`
	TTL       int64  `json:"ttl"`
	Encrypted bool   `json:"encrypted"`
}

// Metadata returns the record's sealed metadata, remaining TTL, and
// encrypted flag.
func (d *DownloadCoordinator) Metadata(ctx context.Context, id, sig string) (*MetadataResult, AuthOutcome, error) {
	rec, err := loadRecord(ctx, d.store, id)
	if err != nil {
		return nil, AuthOutcome{}, err
	}
	if rec.IsPending() {
		outcome := d.checkPending(ctx, rec, sig)
		return nil, outcome, outcome.Err
	}
	outcome := d.authenticate(ctx, rec, sig)
	if outcome.Err != nil {
		return nil, outcome, outcome.Err
	}
	ttl, ok, err := d.store.TTL(ctx, id)
	if err != nil {
		return nil, outcome, err
	}
	var ttlSeconds int64
	if ok && ttl > 0 {
		ttlSeconds = int64(ttl / time.Second)
	}
	return &MetadataResult{Metadata: rec.Metadata, TTL: ttlSeconds, Encrypted: rec.Encrypted}, outcome, nil
}

// Exists implements GET /exists/{id}: true once a record has passed
// out of the pending state.
func (d *DownloadCoordinator) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := loadRecord(ctx, d.store, id)
	if verr.Code(err) == verr.NotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !rec.IsPending(), nil
}

// DirectResult is the output of Direct.
type DirectResult struct {
	URL string
}

// Direct implements GET /download/direct/{id}:
// public, unencrypted records only. Pre-increments the download counter
// before returning the signed URL the caller should 302-redirect to, so
// the counter update is never lost to a client that never follows the
// redirect.
func (d *DownloadCoordinator) Direct(ctx context.Context, id string) (*DirectResult, error) {
	rec, err := loadRecord(ctx, d.store, id)
	if err != nil {
		return nil, err
	}
	if rec.IsPending() {
		return nil, verr.Newf(verr.NotFound, nil, "transfer: record %s is not yet available", id)
	}
	if rec.Encrypted {
		return nil, verr.Newf(verr.InvalidArgument, nil, "transfer: direct download is only available for unencrypted files")
	}
	if rec.IsOverLimit() {
		return nil, verr.Newf(verr.Gone, nil, "transfer: download limit reached for %s", id)
	}
	if _, _, err := d.PreIncrementForDirect(ctx, rec); err != nil {
		return nil, err
	}
	filename := filenameFromMetadata(rec.Metadata, rec.Encrypted)
	url, err := d.bk.SignGetURL(ctx, id, signedURLTTL(d.cfg), filename)
	if err != nil {
		return nil, err
	}
	return &DirectResult{URL: url}, nil
}

// filenameFromMetadata extracts a filename for Content-Disposition
// from a plaintext record's sealed metadata. This is only possible for
// unencrypted files -- encrypted metadata is opaque client-encrypted
// JSON the server cannot parse.
func filenameFromMetadata(sealed string, encrypted bool) string {
	if encrypted || sealed == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return ""
	}
	var payload struct {
		Files []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if len(payload.Files) == 0 {
		return ""
	}
	if len(payload.Files) == 1 {
		return payload.Files[0].Name
	}
	return ""
}

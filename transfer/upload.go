package transfer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/blob/driver"
	"github.com/thatique/sendcore/internal/ids"
	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/kvstore"
)

// UploadCoordinator handles Plan, Complete, and Abort. It is
// stateless across requests -- every call reads and writes the
// Metadata Store Adapter and holds no in-process record of in-flight
// uploads, so any instance can serve any request.
type UploadCoordinator struct {
	cfg   *Config
	bk    *blob.Bucket
	store kvstore.Store
}

// NewUploadCoordinator returns an UploadCoordinator backed by bk and
// store.
func NewUploadCoordinator(cfg *Config, bk *blob.Bucket, store kvstore.Store) *UploadCoordinator {
	return &UploadCoordinator{cfg: cfg, bk: bk, store: store}
}

// PlanRequest is the input to Plan.
type PlanRequest struct {
	FileSize    int64
	Encrypted   bool
	TimeLimit   int64 // seconds; 0 means "use default"
	Dlimit      int64 // 0 means "use default"
	ContentType string
}

// PartPlanEntry describes one part of a multipart plan.
type PartPlanEntry struct {
	PartNumber int64  `json:"partNumber"`
	URL        string `json:"url"`
	MinSize    int64  `json:"minSize"`
	MaxSize    int64  `json:"maxSize"`
}

// PlanResult is the output of Plan, serialized directly as the
// response body of POST /upload/url.
type PlanResult struct {
	UseSignedURL bool            `json:"useSignedUrl"`
	Multipart    bool            `json:"multipart"`
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	URL          string          `json:"url,omitempty"`
	CompleteURL  string          `json:"completeUrl,omitempty"`
	UploadID     string          `json:"uploadId,omitempty"`
	Parts        []PartPlanEntry `json:"parts,omitempty"`
	PartSize     int64           `json:"partSize,omitempty"`
}

// Plan validates req, reserves a file id, seeds a pending record, and
// mints the URLs the client needs to PUT bytes directly to the Blob
// Broker.
func (u *UploadCoordinator) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	if req.FileSize <= 0 || req.FileSize > u.cfg.MaxFileSize {
		return nil, verr.Newf(verr.InvalidArgument, nil, "transfer: fileSize out of range")
	}
	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = u.cfg.DefaultExpireSeconds
	}
	if timeLimit > u.cfg.MaxExpireSeconds {
		timeLimit = u.cfg.MaxExpireSeconds
	}
	dlimit := req.Dlimit
	if dlimit <= 0 {
		dlimit = u.cfg.DefaultDownloads
	}
	if dlimit > u.cfg.MaxDownloads {
		dlimit = u.cfg.MaxDownloads
	}

	id, err := ids.NewFileID()
	if err != nil {
		return nil, verr.New(verr.Internal, err, 1, "transfer: generate file id")
	}
	owner, err := ids.NewOwnerToken()
	if err != nil {
		return nil, verr.New(verr.Internal, err, 1, "transfer: generate owner token")
	}

	prefix := timeLimit / 86400
	if timeLimit%86400 != 0 {
		prefix++
	}
	if prefix < 1 {
		prefix = 1
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result := &PlanResult{UseSignedURL: true, ID: id, Owner: owner, CompleteURL: "/upload/complete"}

	if req.FileSize <= u.cfg.MultipartThreshold {
		url, err := u.bk.SignPutURL(ctx, id, signedURLTTL(u.cfg), contentType)
		if err != nil {
			return nil, err
		}
		if err := u.seed(ctx, id, owner, req.Encrypted, dlimit, req.FileSize, prefix, timeLimit, nil); err != nil {
			return nil, err
		}
		result.Multipart = false
		result.URL = url
		return result, nil
	}

	plan, err := computePartPlan(req.FileSize, u.cfg.DefaultPartSize, u.cfg.MaxParts, u.cfg.MaxPartSize)
	if err != nil {
		return nil, err
	}
	uploadID, err := u.bk.StartMultipart(ctx, id, contentType)
	if err != nil {
		return nil, err
	}
	parts, err := u.signParts(ctx, id, uploadID, plan, req.FileSize, signedURLTTL(u.cfg))
	if err != nil {
		// A single failure fails the whole plan; best-effort cleanup of
		// the multipart session we just opened.
		_ = u.bk.AbortMultipart(ctx, id, uploadID)
		return nil, err
	}
	if err := u.seed(ctx, id, owner, req.Encrypted, dlimit, req.FileSize, prefix, timeLimit, &multipartSeed{
		uploadID: uploadID,
		numParts: plan.NumParts,
	}); err != nil {
		_ = u.bk.AbortMultipart(ctx, id, uploadID)
		return nil, err
	}

	result.Multipart = true
	result.UploadID = uploadID
	result.Parts = parts
	result.PartSize = plan.PartSize
	return result, nil
}

type multipartSeed struct {
	uploadID string
	numParts int64
}

// seed writes the record's pending fields, so that a reader racing the
// upload never observes a partially-initialized record: the fields
// written here are exactly the "pending" fields, never
// metadata/auth/nonce.
func (u *UploadCoordinator) seed(ctx context.Context, id, owner string, encrypted bool, dlimit, fileSize, prefix, timeLimit int64, mp *multipartSeed) error {
	fields := map[string]string{
		FieldOwner:     owner,
		FieldEncrypted: strconv.FormatBool(encrypted),
		FieldDl:        "0",
		FieldDlimit:    strconv.FormatInt(dlimit, 10),
		FieldFileSize:  strconv.FormatInt(fileSize, 10),
		FieldPrefix:    strconv.FormatInt(prefix, 10),
	}
	if mp != nil {
		fields[FieldUploadID] = mp.uploadID
		fields[FieldMultipart] = "true"
		fields[FieldNumParts] = strconv.FormatInt(mp.numParts, 10)
	}
	if err := u.store.SetFields(ctx, id, fields); err != nil {
		return err
	}
	return u.store.Expire(ctx, id, time.Duration(timeLimit)*time.Second)
}

// signParts mints one signed PUT URL per part, in batches of
// cfg.URLMintBatchSize run concurrently, to bound per-URL signing
// latency on a large multipart plan.
func (u *UploadCoordinator) signParts(ctx context.Context, id, uploadID string, plan PartPlan, fileSize int64, ttl time.Duration) ([]PartPlanEntry, error) {
	out := make([]PartPlanEntry, plan.NumParts)
	batch := int64(u.cfg.URLMintBatchSize)
	if batch <= 0 {
		batch = 100
	}
	for start := int64(1); start <= plan.NumParts; start += batch {
		end := start + batch - 1
		if end > plan.NumParts {
			end = plan.NumParts
		}
		var wg sync.WaitGroup
		errs := make([]error, end-start+1)
		for n := start; n <= end; n++ {
			wg.Add(1)
			go func(partNumber int64) {
				defer wg.Done()
				url, err := u.bk.SignPartURL(ctx, id, uploadID, int(partNumber), ttl)
				if err != nil {
					errs[partNumber-start] = err
					return
				}
				minSize, maxSize := partBounds(plan, fileSize, partNumber)
				out[partNumber-1] = PartPlanEntry{PartNumber: partNumber, URL: url, MinSize: minSize, MaxSize: maxSize}
			}(n)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func signedURLTTL(cfg *Config) time.Duration {
	return time.Duration(cfg.SignedURLTTL) * time.Second
}

// CompleteRequest is the input to Complete.
type CompleteRequest struct {
	ID          string
	Metadata    string
	AuthKey     string
	ActualSize  int64
	HaveSize    bool
	Parts       []driver.CompletedPart
}

// CompleteResult is the output of Complete.
type CompleteResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Complete finalizes an upload: completes any multipart session, then
// writes the final metadata/auth/nonce/size fields in an order chosen
// so concurrent readers never observe a half-initialized encrypted
// record.
func (u *UploadCoordinator) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	rec, err := u.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if rec.Multipart {
		if len(req.Parts) == 0 {
			return nil, verr.Newf(verr.InvalidArgument, nil, "transfer: multipart complete requires a non-empty parts list")
		}
		if int64(len(req.Parts)) > rec.NumParts {
			return nil, verr.Newf(verr.InvalidArgument, nil, "transfer: parts list longer than the allocated %d parts", rec.NumParts)
		}
		sorted := make([]driver.CompletedPart, len(req.Parts))
		copy(sorted, req.Parts)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

		size, err := u.bk.CompleteMultipart(ctx, req.ID, rec.UploadID, sorted)
		if err != nil {
			return nil, mapCompleteError(err)
		}
		if !req.HaveSize {
			req.ActualSize = size
			req.HaveSize = true
		}
		if err := u.store.DelField(ctx, req.ID, FieldUploadID); err != nil {
			return nil, err
		}
		if err := u.store.DelField(ctx, req.ID, FieldMultipart); err != nil {
			return nil, err
		}
		if err := u.store.DelField(ctx, req.ID, FieldNumParts); err != nil {
			return nil, err
		}
	}

	if err := u.store.SetFields(ctx, req.ID, map[string]string{FieldMetadata: req.Metadata}); err != nil {
		return nil, err
	}

	if rec.Encrypted {
		if req.AuthKey == "" {
			return nil, verr.Newf(verr.InvalidArgument, nil, "transfer: authKey is required for encrypted files")
		}
		nonce, err := newNonce()
		if err != nil {
			return nil, verr.New(verr.Internal, err, 1, "transfer: mint initial nonce")
		}
		if err := u.store.SetFields(ctx, req.ID, map[string]string{
			FieldAuth:  req.AuthKey,
			FieldNonce: nonce,
		}); err != nil {
			return nil, err
		}
	} else {
		if err := u.store.SetFields(ctx, req.ID, map[string]string{
			FieldAuth:  unencryptedAuthValue,
			FieldNonce: "",
		}); err != nil {
			return nil, err
		}
	}

	if req.HaveSize {
		if err := u.store.SetFields(ctx, req.ID, map[string]string{FieldSize: strconv.FormatInt(req.ActualSize, 10)}); err != nil {
			return nil, err
		}
	}

	return &CompleteResult{
		ID:  req.ID,
		URL: fmt.Sprintf("%s/download/%s#%s", u.cfg.PublicBaseURL, req.ID, rec.Owner),
	}, nil
}

// Abort cancels an in-progress multipart session and deletes the
// pending record. A no-op success on an unknown or already-completed
// upload.
func (u *UploadCoordinator) Abort(ctx context.Context, id, uploadID string) error {
	rec, err := u.load(ctx, id)
	if verr.Code(err) == verr.NotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !rec.IsPending() {
		return nil
	}
	if err := u.bk.AbortMultipart(ctx, id, uploadID); err != nil {
		return err
	}
	return u.store.Del(ctx, id)
}

func (u *UploadCoordinator) load(ctx context.Context, id string) (*Record, error) {
	return loadRecord(ctx, u.store, id)
}

func mapCompleteError(err error) error {
	switch verr.Code(err) {
	case verr.NotFound:
		return verr.New(verr.NotFound, err, 1, "transfer: multipart session expired or unknown")
	case verr.InvalidArgument:
		return verr.New(verr.InvalidArgument, err, 1, "transfer: inconsistent part list")
	default:
		return err
	}
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

package httpapi

import (
	"net/http"

	"github.com/thatique/sendcore/blob/driver"
	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/transfer"
)

type uploadPlanRequest struct {
	FileSize    int64  `json:"fileSize"`
	Encrypted   bool   `json:"encrypted"`
	TimeLimit   int64  `json:"timeLimit"`
	Dlimit      int64  `json:"dlimit"`
	ContentType string `json:"contentType"`
}

// handleUploadPlan implements POST /upload/url.
func (a *API) handleUploadPlan(w http.ResponseWriter, r *http.Request) {
	var req uploadPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	result, err := a.upload.Plan(r.Context(), transfer.PlanRequest{
		FileSize:    req.FileSize,
		Encrypted:   req.Encrypted,
		TimeLimit:   req.TimeLimit,
		Dlimit:      req.Dlimit,
		ContentType: req.ContentType,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type completedPartWire struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

type uploadCompleteRequest struct {
	ID         string              `json:"id"`
	Metadata   string              `json:"metadata"`
	AuthKey    string              `json:"authKey"`
	ActualSize *int64              `json:"actualSize"`
	Parts      []completedPartWire `json:"parts"`
}

// handleUploadComplete implements POST /upload/complete.
func (a *API) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	var req uploadCompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	if req.ID == "" {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: id is required"))
		return
	}
	parts := make([]driver.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = driver.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	creq := transfer.CompleteRequest{
		ID:       req.ID,
		Metadata: req.Metadata,
		AuthKey:  req.AuthKey,
		Parts:    parts,
	}
	if req.ActualSize != nil {
		creq.ActualSize = *req.ActualSize
		creq.HaveSize = true
	}
	result, err := a.upload.Complete(r.Context(), creq)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type uploadAbortRequest struct {
	UploadID string `json:"uploadId"`
}

// handleUploadAbort implements POST /upload/abort/{id}.
func (a *API) handleUploadAbort(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	var req uploadAbortRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	if err := a.upload.Abort(r.Context(), id, req.UploadID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

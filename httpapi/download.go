package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/thatique/sendcore/internal/httprange"
	"github.com/thatique/sendcore/internal/verr"
)

// handleMetadata implements GET /metadata/{id}.
func (a *API) handleMetadata(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	result, outcome, err := a.download.Metadata(r.Context(), id, bearerSig(r))
	setChallenge(w, outcome.Nonce)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// handleExists implements GET /exists/{id}.
func (a *API) handleExists(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	exists, err := a.download.Exists(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}

// handleDownloadURL implements GET /download/url/{id}.
func (a *API) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	result, outcome, err := a.download.URLHandoff(r.Context(), id, bearerSig(r))
	setChallenge(w, outcome.Nonce)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDownloadStream implements GET /download/{id} and
// GET /download/blob/{id}. A Range header resumes a partial
// download (RFC 7233) instead of restarting it from byte zero.
func (a *API) handleDownloadStream(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	sig := bearerSig(r)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		body, outcome, err := a.download.Stream(r.Context(), id, sig)
		setChallenge(w, outcome.Nonce)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		defer body.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
		io.Copy(w, body)
		return
	}

	spec, err := httprange.ParseHTTPSpec(rangeHeader)
	if err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, err, "httpapi: malformed Range header"))
		return
	}

	body, start, size, outcome, err := a.download.StreamRange(r.Context(), id, sig, spec)
	setChallenge(w, outcome.Nonce)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer body.Close()

	length, _ := spec.GetLength(size)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	io.Copy(w, body)
}

// handleDownloadDirect implements GET /download/direct/{id}: public,
// unencrypted only, 302 to a signed URL.
func (a *API) handleDownloadDirect(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	result, err := a.download.Direct(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, result.URL, http.StatusFound)
}

// handleDownloadComplete implements POST /download/complete/{id}
//.
func (a *API) handleDownloadComplete(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	result, outcome, err := a.download.Complete(r.Context(), id, bearerSig(r))
	setChallenge(w, outcome.Nonce)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

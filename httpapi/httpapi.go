// Package httpapi implements the JSON/HTTP surface for the transfer
// coordinator: request decoding, response encoding, the
// Authorization/WWW-Authenticate header dance, and error-kind-to-HTTP-
// status mapping, wired atop a gorilla/mux router the same way
// galbeniluz-teleport and storj-storj route their HTTP APIs.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thatique/sendcore/auth"
	"github.com/thatique/sendcore/internal/logging"
	"github.com/thatique/sendcore/server/health"
	"github.com/thatique/sendcore/transfer"
)

// API dispatches the transfer coordinator's HTTP routes to the
// transfer package's coordinators.
type API struct {
	cfg      *transfer.Config
	upload   *transfer.UploadCoordinator
	download *transfer.DownloadCoordinator
	manager  *transfer.RecordManager
	log      logging.Logger
}

// New returns an API. log may be nil, in which case a no-op logger is
// used.
func New(cfg *transfer.Config, upload *transfer.UploadCoordinator, download *transfer.DownloadCoordinator, manager *transfer.RecordManager, log logging.Logger) *API {
	if log == nil {
		log = logging.NewNop()
	}
	return &API{cfg: cfg, upload: upload, download: download, manager: manager, log: log}
}

// Router builds the mux.Router serving every transfer coordinator
// route. hh, if non-nil, is mounted at /health and /__heartbeat__
// as well, so the
// router is self-sufficient even when not wrapped by server.Server
// (which mounts its own health handler ahead of the main handler).
func (a *API) Router(hh *health.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/config", a.handleConfig).Methods(http.MethodGet)
	if hh != nil {
		r.Handle("/health", hh).Methods(http.MethodGet)
		r.Handle("/__heartbeat__", hh).Methods(http.MethodGet)
	}

	r.HandleFunc("/upload/url", a.handleUploadPlan).Methods(http.MethodPost)
	r.HandleFunc("/upload/complete", a.handleUploadComplete).Methods(http.MethodPost)
	r.HandleFunc("/upload/abort/{id}", a.handleUploadAbort).Methods(http.MethodPost)

	r.HandleFunc("/metadata/{id}", a.handleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/exists/{id}", a.handleExists).Methods(http.MethodGet)
	r.HandleFunc("/download/url/{id}", a.handleDownloadURL).Methods(http.MethodGet)
	r.HandleFunc("/download/{id}", a.handleDownloadStream).Methods(http.MethodGet)
	r.HandleFunc("/download/blob/{id}", a.handleDownloadStream).Methods(http.MethodGet)
	r.HandleFunc("/download/direct/{id}", a.handleDownloadDirect).Methods(http.MethodGet)
	r.HandleFunc("/download/complete/{id}", a.handleDownloadComplete).Methods(http.MethodPost)

	r.HandleFunc("/delete/{id}", a.handleDelete).Methods(http.MethodPost)
	r.HandleFunc("/params/{id}", a.handleParams).Methods(http.MethodPost)
	r.HandleFunc("/info/{id}", a.handleInfo).Methods(http.MethodPost)
	r.HandleFunc("/password/{id}", a.handlePassword).Methods(http.MethodPost)

	return r
}

// ConfigResponse is the body of GET /config.
type ConfigResponse struct {
	MaxFileSize        int64 `json:"maxFileSize"`
	MaxExpireSeconds   int64 `json:"maxExpireSeconds"`
	DefaultExpire      int64 `json:"defaultExpireSeconds"`
	MaxDownloads       int64 `json:"maxDownloads"`
	DefaultDownloads   int64 `json:"defaultDownloads"`
	MultipartThreshold int64 `json:"multipartThreshold"`
	DefaultPartSize    int64 `json:"defaultPartSize"`
	MaxParts           int64 `json:"maxParts"`
	MaxPartSize        int64 `json:"maxPartSize"`
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{
		MaxFileSize:        a.cfg.MaxFileSize,
		MaxExpireSeconds:   a.cfg.MaxExpireSeconds,
		DefaultExpire:      a.cfg.DefaultExpireSeconds,
		MaxDownloads:       a.cfg.MaxDownloads,
		DefaultDownloads:   a.cfg.DefaultDownloads,
		MultipartThreshold: a.cfg.MultipartThreshold,
		DefaultPartSize:    a.cfg.DefaultPartSize,
		MaxParts:           a.cfg.MaxParts,
		MaxPartSize:        a.cfg.MaxPartSize,
	})
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// bearerSig extracts the <sig> value from an "Authorization: send-v1
// <sig>" header, returning "" if the header is absent or malformed.
func bearerSig(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = auth.Scheme + " "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

// setChallenge sets WWW-Authenticate to nonce: every response on a
// protected route carries a fresh challenge, success or failure.
func setChallenge(w http.ResponseWriter, nonce string) {
	if nonce != "" {
		w.Header().Set("WWW-Authenticate", auth.Scheme+" "+nonce)
	}
}

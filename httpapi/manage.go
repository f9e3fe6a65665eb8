package httpapi

import (
	"net/http"

	"github.com/thatique/sendcore/internal/verr"
	"github.com/thatique/sendcore/transfer"
)

type ownerRequest struct {
	Owner string `json:"owner"`
}

// handleDelete implements POST /delete/{id}.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	if err := a.manager.Delete(r.Context(), id, req.Owner); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type paramsRequest struct {
	Owner  string `json:"owner"`
	Dlimit int64  `json:"dlimit"`
}

// handleParams implements POST /params/{id}.
func (a *API) handleParams(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	var req paramsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	if err := a.manager.Params(r.Context(), id, req.Owner, transfer.ParamsRequest{Dlimit: req.Dlimit}); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleInfo implements POST /info/{id}.
func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	result, err := a.manager.Info(r.Context(), id, req.Owner)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type passwordRequest struct {
	Owner   string `json:"owner"`
	AuthKey string `json:"authKey"`
}

// handlePassword implements POST /password/{id}.
func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, verr.Newf(verr.InvalidArgument, nil, "httpapi: malformed request body"))
		return
	}
	if err := a.manager.Password(r.Context(), id, req.Owner, transfer.PasswordRequest{AuthKey: req.AuthKey}); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatique/sendcore/auth"
	"github.com/thatique/sendcore/blob"
	"github.com/thatique/sendcore/blob/fileblob"
	"github.com/thatique/sendcore/internal/logging"
	"github.com/thatique/sendcore/kvstore/memstore"
	"github.com/thatique/sendcore/transfer"
)

type testServer struct {
	*httptest.Server
	cfg *transfer.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := transfer.DefaultConfig()
	cfg.MultipartThreshold = 1 << 20
	cfg.PublicBaseURL = "https://send.example"

	dir := t.TempDir()

	// The signer's base URL has to carry the test server's real address
	// before the server exists, so pre-allocate its listener and hand
	// it to httptest instead of letting NewServer pick one.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	signer := fileblob.NewURLSignerHMAC(&url.URL{Scheme: "http", Host: ln.Addr().String(), Path: "/signed"}, []byte("test-secret"))
	drv, err := fileblob.OpenBucket(dir, &fileblob.Options{URLSigner: signer})
	require.NoError(t, err)
	bk := blob.NewBucket(drv)

	store := memstore.New()
	lifecycle := transfer.NewLifecycle(context.Background(), bk, store)
	uploadCoord := transfer.NewUploadCoordinator(cfg, bk, store)
	verifier := auth.New(store)
	downloadCoord := transfer.NewDownloadCoordinator(cfg, bk, store, verifier, lifecycle)
	manager := transfer.NewRecordManager(cfg, bk, store, lifecycle)

	api := New(cfg, uploadCoord, downloadCoord, manager, logging.NewNop())
	router := api.Router(nil)
	router.Handle("/signed", fileblob.NewHandler(drv, signer)).Methods(http.MethodPut)

	srv := httptest.NewUnstartedServer(router)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, cfg: cfg}
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	if out != nil {
		defer resp.Body.Close()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestUploadPlanAndCompleteUnencryptedRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	var plan transfer.PlanResult
	resp := doJSON(t, http.MethodPost, ts.URL+"/upload/url", map[string]interface{}{
		"fileSize":    13,
		"encrypted":   false,
		"contentType": "application/octet-stream",
	}, &plan)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, plan.Multipart)
	assert.NotEmpty(t, plan.ID)
	assert.NotEmpty(t, plan.URL)

	putReq, err := http.NewRequest(http.MethodPut, plan.URL, bytes.NewReader([]byte("hello, world!")))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(putReq)
	require.NoError(t, err)
	putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	meta := base64.StdEncoding.EncodeToString([]byte(`{"files":[{"name":"hi.txt","size":13,"type":"text/plain"}]}`))
	var complete transfer.CompleteResult
	resp = doJSON(t, http.MethodPost, ts.URL+"/upload/complete", map[string]interface{}{
		"id":         plan.ID,
		"metadata":   meta,
		"actualSize": 13,
	}, &complete)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, plan.ID, complete.ID)

	var md transfer.MetadataResult
	resp = doJSON(t, http.MethodGet, ts.URL+"/metadata/"+plan.ID, nil, &md)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, md.Encrypted)

	streamResp, err := http.Get(ts.URL + "/download/" + plan.ID)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	got := make([]byte, 13)
	_, err = streamResp.Body.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "hello, world!", string(got))
}

func TestUploadPlanRejectsOversizeFile(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.MaxFileSize = 100

	var body errorResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/upload/url", map[string]interface{}{
		"fileSize": 1_000_000,
	}, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body.Error)
}

func TestDownloadMetadataUnknownIDReturnsNotFound(t *testing.T) {
	ts := newTestServer(t)

	var body errorResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/metadata/does-not-exist", nil, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExistsFalseForUnknownID(t *testing.T) {
	ts := newTestServer(t)

	var existsBefore existsResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/exists/never-uploaded", nil, &existsBefore)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, existsBefore.Exists)
}

func TestConfigEndpointReportsLimits(t *testing.T) {
	ts := newTestServer(t)

	var cfgResp ConfigResponse
	resp := doJSON(t, http.MethodGet, ts.URL+"/config", nil, &cfgResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ts.cfg.MaxFileSize, cfgResp.MaxFileSize)
}

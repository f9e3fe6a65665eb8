// Package requestlog defines a Logger interface and a standard handler
// for logging HTTP requests, alongside an NCSA Combined Log Format
// implementation. Adapted from thatique-awan/server/requestlog, which
// shipped only the NCSA formatter (ncsa.go) -- the Logger interface,
// Entry type, and wrapping Handler that drive it are filled in here in
// the same style.
package requestlog

import (
	"net/http"
	"time"
)

// A Logger logs requests.
type Logger interface {
	// Log formats the entry and writes it to the underlying writer.
	// Multiple concurrent calls must produce sequential writes.
	Log(*Entry)
}

// An Entry records information about a completed HTTP request.
type Entry struct {
	ReceivedTime     time.Time
	RequestMethod    string
	RequestURL       string
	RequestHeaderSize int64
	RequestBodySize  int64
	UserAgent        string
	Referer          string
	Proto            string
	RemoteIP         string

	ResponseHeaderSize int64
	ResponseBodySize   int64
	Status             int

	Latency time.Duration
}

// NewHandler wraps h so that every request it serves produces an Entry
// passed to l.Log. If l is nil, h is returned unwrapped.
func NewHandler(l Logger, h http.Handler) http.Handler {
	if l == nil {
		return h
	}
	return &handler{log: l, handler: h}
}

type handler struct {
	log     Logger
	handler http.Handler
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &responseStats{ResponseWriter: w, status: http.StatusOK}
	h.handler.ServeHTTP(rw, r)

	ent := &Entry{
		ReceivedTime:       start,
		RequestMethod:      r.Method,
		RequestURL:         r.URL.String(),
		RequestHeaderSize:  headerSize(r.Header),
		UserAgent:          r.UserAgent(),
		Referer:            r.Referer(),
		Proto:              r.Proto,
		RemoteIP:           remoteIP(r.RemoteAddr),
		ResponseHeaderSize: headerSize(rw.Header()),
		ResponseBodySize:   rw.bodySize,
		Status:             rw.status,
		Latency:            time.Since(start),
	}
	h.log.Log(ent)
}

type responseStats struct {
	http.ResponseWriter
	status     int
	bodySize   int64
	wroteHeader bool
}

func (w *responseStats) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseStats) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.bodySize += int64(n)
	return n, err
}

func headerSize(h http.Header) int64 {
	var n int64
	for k, vs := range h {
		for _, v := range vs {
			n += int64(len(k) + len(v) + 2)
		}
	}
	return n
}

func remoteIP(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

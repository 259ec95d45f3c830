package shipper

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/obsidianstack/logshipper/agent/internal/config"
	"github.com/obsidianstack/logshipper/pkg/types"
)

// pushed is one request as seen by the fake aggregator.
type pushed struct {
	header http.Header
	body   types.PushRequest
}

// fakeLoki is an in-process push endpoint that records every request.
type fakeLoki struct {
	srv    *httptest.Server
	calls  atomic.Int64
	mu     sync.Mutex
	pushes []pushed

	status int           // response status, default 204
	body   string        // response body
	delay  time.Duration // sleep before answering
}

// newFakeLoki starts the server after applying opts, so the handler only
// ever reads the configured fields.
func newFakeLoki(t *testing.T, opts ...func(*fakeLoki)) *fakeLoki {
	t.Helper()
	f := &fakeLoki{status: http.StatusNoContent}
	for _, opt := range opts {
		opt(f)
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLoki) handle(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}

	var rd io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer zr.Close()
		rd = zr
	}
	var req types.PushRequest
	if err := json.NewDecoder(rd).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.pushes = append(f.pushes, pushed{header: r.Header.Clone(), body: req})
	f.mu.Unlock()

	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func (f *fakeLoki) received() []pushed {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pushed, len(f.pushes))
	copy(out, f.pushes)
	return out
}

// captureHandler is a slog.Handler that keeps every record.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

// errors returns the captured records at error level or above.
func (h *captureHandler) errors() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []slog.Record
	for _, r := range h.records {
		if r.Level >= slog.LevelError {
			out = append(out, r)
		}
	}
	return out
}

func attr(r slog.Record, key string) (slog.Value, bool) {
	var v slog.Value
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v, found = a.Value, true
			return false
		}
		return true
	})
	return v, found
}

// countingTransport counts round trips and answers 204 without a network.
type countingTransport struct {
	calls atomic.Int64
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusNoContent,
		Body:       http.NoBody,
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func shipperCfg(url string) config.ShipperConfig {
	c := config.DefaultShipperConfig()
	c.URL = url
	return c
}

// newTestShipper builds a Shipper against url with diagnostics captured.
func newTestShipper(t *testing.T, cfg config.ShipperConfig, opts ...Option) (*Shipper, *captureHandler) {
	t.Helper()
	h := &captureHandler{}
	opts = append([]Option{WithDiagnostics(slog.New(h))}, opts...)
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, h
}

func makeRecord(level types.Level, channel, msg string) types.Record {
	return types.Record{
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:   level,
		Channel: channel,
		Message: msg,
	}
}

// decodeLine parses the single line of a single-stream push.
func decodeLine(t *testing.T, req types.PushRequest) map[string]any {
	t.Helper()
	if len(req.Streams) != 1 || len(req.Streams[0].Values) != 1 {
		t.Fatalf("want 1 stream with 1 value, got %+v", req)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(req.Streams[0].Values[0][1]), &out); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	return out
}

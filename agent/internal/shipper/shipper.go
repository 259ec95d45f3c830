package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/obsidianstack/logshipper/agent/internal/config"
	"github.com/obsidianstack/logshipper/pkg/types"
)

// Shipper pushes one record per call to a Loki-compatible aggregator.
// All fields are set in New and read-only afterwards, so Ship and Push are
// safe for concurrent use.
type Shipper struct {
	cfg     config.ShipperConfig
	pushURL string
	client  *http.Client
	diag    *slog.Logger
	metrics *Metrics
	newID   func() string // injectable for tests
}

// Option customises a Shipper at construction.
type Option func(*Shipper)

// WithDiagnostics sets the logger that receives one line per failed push.
// It must not route back into this Shipper.
func WithDiagnostics(l *slog.Logger) Option {
	return func(s *Shipper) { s.diag = l }
}

// WithHTTPClient replaces the client built from the config. Auth, tenant and
// timeout settings from the config are then the client's responsibility.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Shipper) { s.client = c }
}

// WithMetrics makes the Shipper count into m instead of private counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Shipper) { s.metrics = m }
}

// New validates cfg and builds a Shipper. The config is copied; later
// changes to the caller's maps do not affect the Shipper.
func New(cfg config.ShipperConfig, opts ...Option) (*Shipper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("shipper: %w", err)
	}
	labels := make(map[string]string, len(cfg.Labels))
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	cfg.Labels = labels
	if cfg.TimestampPrecision == "" {
		cfg.TimestampPrecision = config.PrecisionSecond
	}

	s := &Shipper{
		cfg:     cfg,
		pushURL: cfg.PushURL(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := buildHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("shipper: build http client: %w", err)
		}
		s.client = client
	}
	if s.diag == nil {
		s.diag = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	return s, nil
}

// MinLevel returns the configured severity threshold.
func (s *Shipper) MinLevel() types.Level { return s.cfg.MinLevel }

// Metrics returns the counters this Shipper records into.
func (s *Shipper) Metrics() *Metrics { return s.metrics }

// Ship delivers rec on a best-effort basis. It always returns normally;
// failures are reported on the diagnostics logger.
func (s *Shipper) Ship(rec types.Record) {
	s.Push(context.Background(), rec)
}

// Push is Ship with a caller context and the classified outcome returned.
// The Result is informational; failures have already been reported.
func (s *Shipper) Push(ctx context.Context, rec types.Record) Result {
	if rec.Level < s.cfg.MinLevel {
		res := Result{Outcome: OutcomeFilteredOut}
		s.metrics.observe(res)
		return res
	}

	req, degraded := toPushRequest(rec, s.cfg.Labels, s.cfg.TimestampPrecision)
	payload, err := json.Marshal(req)

	var res Result
	if err != nil {
		// Labels and line are plain strings; this is not expected to happen.
		res = Result{Outcome: OutcomeTransportError, Err: fmt.Errorf("marshal push request: %w", err)}
	} else {
		res = s.send(ctx, payload)
	}
	res.Degraded = degraded

	s.metrics.observe(res)
	if res.Failed() {
		s.diagnose(rec, res)
	} else if degraded {
		s.diag.Debug("shipper: context partially stringified",
			"channel", rec.Channel, "request_id", res.RequestID)
	}
	return res
}

// send POSTs payload to the push URL and classifies the response.
func (s *Shipper) send(ctx context.Context, payload []byte) Result {
	res := Result{RequestID: s.newID()}

	body, encoding, err := s.encode(payload)
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = fmt.Errorf("compress body: %w", err)
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.pushURL, bytes.NewReader(body))
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", res.RequestID)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = fmt.Errorf("http post: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		res.Outcome = OutcomeDelivered
		return res
	}

	res.Outcome = OutcomeRemoteRejected
	res.Body = readTruncated(resp.Body, s.cfg.MaxDiagnosticBody)
	res.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	return res
}

// encode applies the configured body compression.
func (s *Shipper) encode(payload []byte) ([]byte, string, error) {
	if s.cfg.Compression != config.CompressionGzip {
		return payload, "", nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "gzip", nil
}

// diagnose emits exactly one line describing a failed push.
func (s *Shipper) diagnose(rec types.Record, res Result) {
	attrs := []any{
		"outcome", string(res.Outcome),
		"url", s.pushURL,
		"request_id", res.RequestID,
		"channel", rec.Channel,
		"level", rec.Level.Label(),
		"err", res.Err,
	}
	if res.StatusCode != 0 {
		attrs = append(attrs, "status", res.StatusCode)
	}
	if res.Body != "" {
		attrs = append(attrs, "body", res.Body)
	}
	s.diag.Error("shipper: push failed", attrs...)
}

// readTruncated reads at most limit bytes of r, marking the cut if there was
// more.
func readTruncated(r io.Reader, limit int) string {
	if limit <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if len(b) > limit {
		return string(b[:limit]) + "...(truncated)"
	}
	return string(b)
}

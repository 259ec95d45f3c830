package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/obsidianstack/logshipper/pkg/types"
	"github.com/obsidianstack/logshipper/server/internal/store"
)

// StreamsPath lists stored streams.
const StreamsPath = "/api/streams"

var (
	errTooLarge            = errors.New("request body too large")
	errUnsupportedEncoding = errors.New("unsupported content encoding")
)

// Publisher receives every accepted push after it has been stored.
type Publisher interface {
	Publish(streams []types.Stream)
}

// Receiver is the HTTP handler for the push endpoint, the stream query API
// and the readiness probe.
type Receiver struct {
	store   *store.Store
	pub     Publisher
	maxBody int64
	mux     *http.ServeMux
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithPublisher forwards accepted pushes to p, e.g. a live tail hub.
func WithPublisher(p Publisher) Option {
	return func(r *Receiver) { r.pub = p }
}

// New creates a Receiver that writes accepted streams to st. maxBody caps
// both the raw and the decompressed request body.
func New(st *store.Store, maxBody int64, opts ...Option) *Receiver {
	r := &Receiver{store: st, maxBody: maxBody, mux: http.NewServeMux()}
	for _, o := range opts {
		o(r)
	}

	r.mux.HandleFunc(types.PushPath, r.push)
	r.mux.HandleFunc(StreamsPath, r.streams)
	r.mux.HandleFunc("/ready", r.ready)

	return r
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- route handlers ---------------------------------------------------------

// push handles POST /loki/api/v1/push. The whole request is validated before
// any stream is stored, so a rejected push stores nothing.
func (r *Receiver) push(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := r.readBody(w, req)
	if err != nil {
		switch {
		case errors.Is(err, errTooLarge):
			jsonErr(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, errUnsupportedEncoding):
			jsonErr(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			jsonErr(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	var in pushPayload
	if err := json.Unmarshal(body, &in); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid push payload: "+err.Error())
		return
	}
	pr, err := validate(in)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	entries := 0
	for _, s := range pr.Streams {
		fp := r.store.Append(s)
		entries += len(s.Values)
		slog.Debug("receiver: stream appended", "stream", fp, "entries", len(s.Values))
	}
	if r.pub != nil {
		r.pub.Publish(pr.Streams)
	}
	slog.Debug("receiver: push accepted",
		"streams", len(pr.Streams),
		"entries", entries,
		"request_id", req.Header.Get("X-Request-ID"),
		"tenant", req.Header.Get("X-Scope-OrgID"),
	)

	w.WriteHeader(http.StatusNoContent)
}

// streams handles GET /api/streams. Query parameters select streams by exact
// label match: /api/streams?channel=app&level=error.
func (r *Receiver) streams(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var match map[string]string
	if q := req.URL.Query(); len(q) > 0 {
		match = make(map[string]string, len(q))
		for k := range q {
			match[k] = q.Get(k)
		}
	}

	entries := r.store.Select(match)
	out := StreamsResponse{Streams: make([]StreamResponse, 0, len(entries))}
	for _, e := range entries {
		out.Streams = append(out.Streams, StreamResponse{
			Fingerprint: e.Fingerprint,
			Stream:      e.Labels,
			Values:      e.Values,
			UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// ready handles GET /ready.
func (r *Receiver) ready(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ready\n") //nolint:errcheck
}

// --- helpers ----------------------------------------------------------------

// readBody returns the decompressed request body, enforcing maxBody.
func (r *Receiver) readBody(w http.ResponseWriter, req *http.Request) ([]byte, error) {
	raw := http.MaxBytesReader(w, req.Body, r.maxBody)
	defer raw.Close()

	var src io.Reader = raw
	switch enc := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, maybeTooLarge(fmt.Errorf("invalid gzip body: %w", err))
		}
		defer zr.Close()
		src = zr
	default:
		return nil, fmt.Errorf("%w %q", errUnsupportedEncoding, enc)
	}

	body, err := io.ReadAll(io.LimitReader(src, r.maxBody+1))
	if err != nil {
		return nil, maybeTooLarge(fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > r.maxBody {
		return nil, errTooLarge
	}
	return body, nil
}

func maybeTooLarge(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errTooLarge
	}
	return err
}

// validate checks the structural rules Loki applies to a push request and
// converts it into the shared push types.
func validate(in pushPayload) (types.PushRequest, error) {
	if len(in.Streams) == 0 {
		return types.PushRequest{}, errors.New("push request has no streams")
	}
	pr := types.PushRequest{Streams: make([]types.Stream, 0, len(in.Streams))}
	for i, s := range in.Streams {
		if len(s.Stream) == 0 {
			return types.PushRequest{}, fmt.Errorf("streams[%d]: empty label set", i)
		}
		if len(s.Values) == 0 {
			return types.PushRequest{}, fmt.Errorf("streams[%d]: no values", i)
		}
		values := make([][2]string, len(s.Values))
		for j, v := range s.Values {
			if len(v) != 2 {
				return types.PushRequest{}, fmt.Errorf("streams[%d].values[%d]: want [timestamp, line], got %d elements", i, j, len(v))
			}
			if _, err := strconv.ParseInt(v[0], 10, 64); err != nil {
				return types.PushRequest{}, fmt.Errorf("streams[%d].values[%d]: timestamp %q is not integer nanoseconds", i, j, v[0])
			}
			values[j] = [2]string{v[0], v[1]}
		}
		pr.Streams = append(pr.Streams, types.Stream{Stream: s.Stream, Values: values})
	}
	return pr, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

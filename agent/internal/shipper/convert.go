package shipper

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/obsidianstack/logshipper/agent/internal/config"
	"github.com/obsidianstack/logshipper/pkg/types"
)

// logLine is the JSON document stored as the Loki line.
type logLine struct {
	Message   string         `json:"message"`
	Datetime  string         `json:"datetime"`
	LevelName string         `json:"level_name"`
	Channel   string         `json:"channel"`
	Context   map[string]any `json:"context"`
}

// toPushRequest converts rec into a single-stream push envelope.
// degraded reports whether any context value had to be stringified.
func toPushRequest(rec types.Record, labels map[string]string, precision string) (req types.PushRequest, degraded bool) {
	line, degraded := buildLine(rec)
	return types.PushRequest{
		Streams: []types.Stream{{
			Stream: buildLabels(labels, rec),
			Values: [][2]string{{entryTimestamp(rec.Time, precision), line}},
		}},
	}, degraded
}

// buildLabels returns a fresh label set: defaults first, then level and
// channel on top.
func buildLabels(defaults map[string]string, rec types.Record) map[string]string {
	labels := make(map[string]string, len(defaults)+2)
	for k, v := range defaults {
		labels[k] = v
	}
	labels["level"] = rec.Level.Label()
	labels["channel"] = rec.Channel
	return labels
}

// entryTimestamp renders the Loki timestamp in nanoseconds.
// With PrecisionSecond the sub-second part is dropped, so T+0.999s encodes
// as T*1e9.
func entryTimestamp(t time.Time, precision string) string {
	if precision == config.PrecisionNanosecond {
		return strconv.FormatInt(t.UnixNano(), 10)
	}
	return strconv.FormatInt(t.Unix()*int64(time.Second), 10)
}

// buildLine serializes rec. It never fails: values json cannot encode are
// replaced by a string and degraded is set.
func buildLine(rec types.Record) (line string, degraded bool) {
	n := normalizer{walking: make(map[uintptr]bool)}
	l := logLine{
		Message:   rec.Message,
		Datetime:  rec.Time.Format(time.RFC3339),
		LevelName: rec.Level.Name(),
		Channel:   rec.Channel,
		Context:   n.object(rec.MergedContext()),
	}

	b, err := json.Marshal(l)
	if err != nil {
		l.Context = map[string]any{"unserializable_context": err.Error()}
		b, _ = json.Marshal(l)
		return string(b), true
	}
	return string(b), n.degraded
}

// maxDepth bounds how far normalizer descends into nested context values.
const maxDepth = 32

// normalizer copies context values into a form json can always encode.
// Nested maps and slices are copied, never modified, since they belong to
// the caller.
type normalizer struct {
	degraded bool
	// walking holds the maps and slices on the current path, for cycle
	// detection.
	walking map[uintptr]bool
}

func (n *normalizer) object(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = n.value(v, 1)
	}
	return out
}

func (n *normalizer) value(v any, depth int) any {
	switch x := v.(type) {
	case nil:
		return nil
	case error:
		return x.Error()
	case map[string]any:
		if x == nil {
			return x
		}
		ptr := reflect.ValueOf(x).Pointer()
		if depth >= maxDepth || n.walking[ptr] {
			return n.unencodable(v)
		}
		n.walking[ptr] = true
		defer delete(n.walking, ptr)
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = n.value(e, depth+1)
		}
		return out
	case []any:
		if len(x) == 0 {
			return x
		}
		ptr := reflect.ValueOf(x).Pointer()
		if depth >= maxDepth || n.walking[ptr] {
			return n.unencodable(v)
		}
		n.walking[ptr] = true
		defer delete(n.walking, ptr)
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = n.value(e, depth+1)
		}
		return out
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return n.unencodable(v)
		}
		return v
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return n.unencodable(v)
		}
		return v
	case fmt.Stringer:
		if _, ok := v.(json.Marshaler); !ok {
			return x.String()
		}
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return n.unencodable(v)
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		if _, err := json.Marshal(v); err != nil {
			return n.unencodable(v)
		}
	}
	return v
}

func (n *normalizer) unencodable(v any) string {
	n.degraded = true
	return fallbackString(v)
}

// fallbackString formats scalars with %v and everything else by type only,
// since composite values may be cyclic.
func fallbackString(v any) string {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("[unserializable %T]", v)
	}
}

package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/valyala/fastjson"

	"github.com/obsidianstack/logshipper/pkg/types"
)

// MaxLineSize bounds a single input line.
const MaxLineSize = 1 << 20

// ErrNotObject is returned for lines that are valid JSON but not an object.
var ErrNotObject = errors.New("ingest: line is not a JSON object")

// timeLayouts are tried in order for the datetime field.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// Decoder turns JSON lines into records. It is safe for concurrent use.
type Decoder struct {
	parsers fastjson.ParserPool
	channel string
	now     func() time.Time // injectable for tests
}

// NewDecoder returns a Decoder that uses channel for lines without one.
func NewDecoder(channel string) *Decoder {
	return &Decoder{channel: channel, now: time.Now}
}

// Decode parses one line.
func (d *Decoder) Decode(line []byte) (types.Record, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(line)
	if err != nil {
		return types.Record{}, fmt.Errorf("ingest: parse json: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return types.Record{}, ErrNotObject
	}

	rec := types.Record{
		Message: string(v.GetStringBytes("message")),
		Channel: string(v.GetStringBytes("channel")),
	}
	if rec.Message == "" {
		rec.Message = string(v.GetStringBytes("msg"))
	}
	if rec.Channel == "" {
		rec.Channel = d.channel
	}

	rec.Level, err = decodeLevel(v)
	if err != nil {
		return types.Record{}, err
	}
	rec.Time = d.decodeTime(v)

	if rec.Context, err = decodeMap(v.Get("context")); err != nil {
		return types.Record{}, fmt.Errorf("ingest: context: %w", err)
	}
	if rec.Extra, err = decodeMap(v.Get("extra")); err != nil {
		return types.Record{}, fmt.Errorf("ingest: extra: %w", err)
	}
	return rec, nil
}

// decodeLevel prefers level_name, then level as a name or number.
// A record with neither is treated as info.
func decodeLevel(v *fastjson.Value) (types.Level, error) {
	if name := v.GetStringBytes("level_name"); len(name) > 0 {
		return parseLevel(string(name))
	}
	lv := v.Get("level")
	if lv == nil {
		return types.LevelInfo, nil
	}
	switch lv.Type() {
	case fastjson.TypeNumber:
		n, err := lv.Int()
		if err != nil {
			return 0, fmt.Errorf("ingest: level: %w", err)
		}
		return parseLevel(strconv.Itoa(n))
	case fastjson.TypeString:
		b, _ := lv.StringBytes()
		return parseLevel(string(b))
	default:
		return 0, fmt.Errorf("ingest: level has unsupported type %s", lv.Type())
	}
}

func parseLevel(s string) (types.Level, error) {
	l, err := types.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	return l, nil
}

func (d *Decoder) decodeTime(v *fastjson.Value) time.Time {
	for _, key := range []string{"datetime", "time", "timestamp"} {
		f := v.Get(key)
		if f == nil {
			continue
		}
		switch f.Type() {
		case fastjson.TypeString:
			s := string(f.GetStringBytes())
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t
				}
			}
		case fastjson.TypeNumber:
			// Unix seconds, possibly fractional.
			sec := f.GetFloat64()
			whole := int64(sec)
			return time.Unix(whole, int64((sec-float64(whole))*1e9))
		}
	}
	return d.now()
}

// decodeMap converts a JSON object into a Go map. null, a missing field and
// an empty array (PHP's encoding of an empty array) all yield nil.
func decodeMap(v *fastjson.Value) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Type() {
	case fastjson.TypeNull:
		return nil, nil
	case fastjson.TypeArray:
		if len(v.GetArray()) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("expected object, got non-empty array")
	case fastjson.TypeObject:
	default:
		return nil, fmt.Errorf("expected object, got %s", v.Type())
	}

	// Re-decode the raw object with encoding/json to get plain Go values.
	var out map[string]any
	if err := json.Unmarshal(v.MarshalTo(nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Scanner yields records from a line-oriented reader.
type Scanner struct {
	sc   *bufio.Scanner
	dec  *Decoder
	rec  types.Record
	err  error
	line int
}

// NewScanner reads JSON lines from r using dec.
func NewScanner(r io.Reader, dec *Decoder) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), MaxLineSize)
	return &Scanner{sc: sc, dec: dec}
}

// Next advances to the next line. Blank lines are skipped. It returns false
// at EOF or on a read error (see Err). A line that fails to decode still
// returns true; check LineErr.
func (s *Scanner) Next() bool {
	for s.sc.Scan() {
		s.line++
		b := s.sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		s.rec, s.err = s.dec.Decode(b)
		return true
	}
	return false
}

// Record returns the record decoded by the last Next.
func (s *Scanner) Record() types.Record { return s.rec }

// LineErr returns the decode error for the current line, if any.
func (s *Scanner) LineErr() error { return s.err }

// Line returns the 1-based number of the current line.
func (s *Scanner) Line() int { return s.line }

// Err returns the first read error encountered.
func (s *Scanner) Err() error { return s.sc.Err() }

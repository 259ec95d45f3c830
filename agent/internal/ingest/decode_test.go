package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/logshipper/pkg/types"
)

var fixedNow = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	d := NewDecoder("app")
	d.now = func() time.Time { return fixedNow }
	return d
}

func TestDecode_MonologLine(t *testing.T) {
	line := `{"message":"An error occurred:","context":{"exception_message":"boom","line":21},` +
		`"level":400,"level_name":"ERROR","channel":"local",` +
		`"datetime":"2024-03-01T12:00:00.123456+00:00","extra":{"pid":7}}`

	rec, err := newTestDecoder().Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Message != "An error occurred:" {
		t.Errorf("Message = %q", rec.Message)
	}
	if rec.Level != types.LevelError {
		t.Errorf("Level = %v", rec.Level)
	}
	if rec.Channel != "local" {
		t.Errorf("Channel = %q", rec.Channel)
	}
	want := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)
	if !rec.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", rec.Time, want)
	}
	if rec.Context["exception_message"] != "boom" || rec.Context["line"] != float64(21) {
		t.Errorf("Context = %v", rec.Context)
	}
	if rec.Extra["pid"] != float64(7) {
		t.Errorf("Extra = %v", rec.Extra)
	}
}

func TestDecode_Fallbacks(t *testing.T) {
	rec, err := newTestDecoder().Decode([]byte(`{"msg":"hello"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Message != "hello" {
		t.Errorf("Message = %q", rec.Message)
	}
	if rec.Channel != "app" {
		t.Errorf("Channel = %q, want decoder default", rec.Channel)
	}
	if rec.Level != types.LevelInfo {
		t.Errorf("Level = %v, want info", rec.Level)
	}
	if !rec.Time.Equal(fixedNow) {
		t.Errorf("Time = %v, want now", rec.Time)
	}
	if rec.Context != nil || rec.Extra != nil {
		t.Errorf("Context/Extra = %v/%v, want nil", rec.Context, rec.Extra)
	}
}

func TestDecode_LevelForms(t *testing.T) {
	tests := []struct {
		line string
		want types.Level
	}{
		{`{"level":"warning"}`, types.LevelWarning},
		{`{"level":"WARN"}`, types.LevelWarning},
		{`{"level":550}`, types.LevelAlert},
		{`{"level_name":"NOTICE","level":400}`, types.LevelNotice},
	}
	for _, tc := range tests {
		rec, err := newTestDecoder().Decode([]byte(tc.line))
		if err != nil {
			t.Errorf("%s: error = %v", tc.line, err)
			continue
		}
		if rec.Level != tc.want {
			t.Errorf("%s: Level = %v, want %v", tc.line, rec.Level, tc.want)
		}
	}
}

func TestDecode_TimeForms(t *testing.T) {
	tests := []struct {
		line string
		want time.Time
	}{
		{`{"datetime":"2024-03-01T12:00:00Z"}`, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`{"time":"2024-03-01 12:00:00"}`, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`{"timestamp":1700000000.5}`, time.Unix(1700000000, 500000000)},
		{`{"datetime":"yesterday"}`, fixedNow},
	}
	for _, tc := range tests {
		rec, err := newTestDecoder().Decode([]byte(tc.line))
		if err != nil {
			t.Errorf("%s: error = %v", tc.line, err)
			continue
		}
		if !rec.Time.Equal(tc.want) {
			t.Errorf("%s: Time = %v, want %v", tc.line, rec.Time, tc.want)
		}
	}
}

func TestDecode_EmptyPHPArrays(t *testing.T) {
	rec, err := newTestDecoder().Decode([]byte(`{"message":"m","context":[],"extra":null}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Context != nil || rec.Extra != nil {
		t.Errorf("Context/Extra = %v/%v, want nil", rec.Context, rec.Extra)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"invalid json", `{"message":`},
		{"array", `[1,2]`},
		{"unknown level", `{"level":"verbose"}`},
		{"bool level", `{"level":true}`},
		{"context not object", `{"context":"x"}`},
		{"extra non-empty array", `{"extra":[1]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := newTestDecoder().Decode([]byte(tc.line)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}

	if _, err := newTestDecoder().Decode([]byte(`"str"`)); !errors.Is(err, ErrNotObject) {
		t.Errorf("scalar line: err = %v, want ErrNotObject", err)
	}
}

func TestScanner(t *testing.T) {
	input := strings.Join([]string{
		`{"message":"one","level_name":"INFO"}`,
		``,
		`not json`,
		`   `,
		`{"message":"two","level_name":"ERROR"}`,
	}, "\n")

	sc := NewScanner(strings.NewReader(input), newTestDecoder())

	var msgs []string
	var badLines []int
	for sc.Next() {
		if sc.LineErr() != nil {
			badLines = append(badLines, sc.Line())
			continue
		}
		msgs = append(msgs, sc.Record().Message)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(msgs) != 2 || msgs[0] != "one" || msgs[1] != "two" {
		t.Errorf("messages = %v", msgs)
	}
	if len(badLines) != 1 || badLines[0] != 3 {
		t.Errorf("bad lines = %v, want [3]", badLines)
	}
}

func TestScanner_LineTooLong(t *testing.T) {
	long := `{"message":"` + strings.Repeat("x", MaxLineSize) + `"}`
	sc := NewScanner(strings.NewReader(long), newTestDecoder())
	for sc.Next() {
	}
	if sc.Err() == nil {
		t.Fatal("expected bufio.ErrTooLong")
	}
}

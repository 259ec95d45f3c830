package types

import (
	"testing"
	"time"
)

func TestRecord_MergedContext_ExtraWins(t *testing.T) {
	r := Record{
		Time:    time.Now(),
		Level:   LevelInfo,
		Channel: "app",
		Message: "m",
		Context: map[string]any{"user_id": 1, "route": "/home"},
		Extra:   map[string]any{"user_id": 2, "pid": 99},
	}
	got := r.MergedContext()

	if got["user_id"] != 2 {
		t.Errorf("user_id = %v, want 2 (extra wins)", got["user_id"])
	}
	if got["route"] != "/home" {
		t.Errorf("route = %v, want /home", got["route"])
	}
	if got["pid"] != 99 {
		t.Errorf("pid = %v, want 99", got["pid"])
	}
	// The merge must not write through to the record's own maps.
	if r.Context["user_id"] != 1 {
		t.Errorf("Context mutated: user_id = %v", r.Context["user_id"])
	}
}

func TestRecord_MergedContext_Shallow(t *testing.T) {
	r := Record{
		Context: map[string]any{"exception": map[string]any{"file": "a.php", "line": 10}},
		Extra:   map[string]any{"exception": map[string]any{"class": "RuntimeException"}},
	}
	exc := r.MergedContext()["exception"].(map[string]any)
	if _, ok := exc["file"]; ok {
		t.Error("nested maps must not be deep-merged")
	}
	if exc["class"] != "RuntimeException" {
		t.Errorf("exception.class = %v", exc["class"])
	}
}

func TestRecord_MergedContext_Empty(t *testing.T) {
	got := Record{}.MergedContext()
	if got == nil || len(got) != 0 {
		t.Errorf("MergedContext() of empty record = %v, want empty non-nil map", got)
	}
}

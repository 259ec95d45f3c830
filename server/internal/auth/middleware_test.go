package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler answers 204 and counts calls.
type okHandler struct{ calls int }

func (h *okHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.WriteHeader(http.StatusNoContent)
}

func callWithKey(t *testing.T, h http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/loki/api/v1/push", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	next := &okHandler{}
	h := APIKey("none", "x-api-key", "secret", next)
	// No key on the request; should still pass because mode != "apikey".
	if rr := callWithKey(t, h, "x-api-key", ""); rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
	if next.calls != 1 {
		t.Errorf("next called %d times, want 1", next.calls)
	}
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured; allow all.
	h := APIKey("apikey", "x-api-key", "", &okHandler{})
	if rr := callWithKey(t, h, "x-api-key", ""); rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
}

func TestAPIKey_CorrectKey_Passes(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "supersecret", &okHandler{})
	if rr := callWithKey(t, h, "x-api-key", "supersecret"); rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
}

func TestAPIKey_WrongKey_Unauthorized(t *testing.T) {
	next := &okHandler{}
	h := APIKey("apikey", "x-api-key", "supersecret", next)
	rr := callWithKey(t, h, "x-api-key", "wrong")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if next.calls != 0 {
		t.Error("next must not be called on a rejected request")
	}
}

func TestAPIKey_MissingHeader_Unauthorized(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "supersecret", &okHandler{})
	if rr := callWithKey(t, h, "x-api-key", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestAPIKey_CustomHeader(t *testing.T) {
	h := APIKey("apikey", "x-obs-token", "mytoken", &okHandler{})
	if rr := callWithKey(t, h, "X-Obs-Token", "mytoken"); rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
	if rr := callWithKey(t, h, "x-api-key", "mytoken"); rr.Code != http.StatusUnauthorized {
		t.Errorf("key in wrong header: got %d, want 401", rr.Code)
	}
}

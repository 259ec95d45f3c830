package tail_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/logshipper/pkg/types"
	"github.com/obsidianstack/logshipper/server/internal/tail"
)

// --- helpers ----------------------------------------------------------------

func stream(channel, level, line string) types.Stream {
	return types.Stream{
		Stream: map[string]string{"channel": channel, "level": level},
		Values: [][2]string{{"1709294400000000000", line}},
	}
}

// startHub starts a test HTTP server with the hub as its handler and a
// cancellable Run loop. Returns the ws:// URL, the hub and the cancel func.
func startHub(t *testing.T) (wsURL string, hub *tail.Hub, cancel func()) {
	t.Helper()

	hub = tail.New()
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a client and waits until the hub has registered it.
func dial(t *testing.T, hub *tail.Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.Count()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() <= before {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// readPush reads one message from conn with a short deadline.
func readPush(t *testing.T, conn *websocket.Conn) types.PushRequest {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var pr types.PushRequest
	if err := json.Unmarshal(msg, &pr); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return pr
}

// --- tests ------------------------------------------------------------------

func TestHub_PublishReachesClient(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	conn := dial(t, hub, wsURL)

	hub.Publish([]types.Stream{stream("app", "error", "boom")})

	pr := readPush(t, conn)
	if len(pr.Streams) != 1 {
		t.Fatalf("streams: got %d, want 1", len(pr.Streams))
	}
	if pr.Streams[0].Values[0][1] != "boom" || pr.Streams[0].Stream["level"] != "error" {
		t.Errorf("stream = %+v", pr.Streams[0])
	}
}

func TestHub_FiltersByLabels(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	errorsOnly := dial(t, hub, wsURL+"?level=error")
	everything := dial(t, hub, wsURL)

	hub.Publish([]types.Stream{stream("app", "info", "first")})
	hub.Publish([]types.Stream{stream("app", "info", "skip"), stream("app", "error", "second")})

	// The filtered client's first message is the second push, reduced to
	// its matching stream.
	pr := readPush(t, errorsOnly)
	if len(pr.Streams) != 1 || pr.Streams[0].Values[0][1] != "second" {
		t.Errorf("filtered client got %+v", pr.Streams)
	}

	if pr := readPush(t, everything); pr.Streams[0].Values[0][1] != "first" {
		t.Errorf("unfiltered client first message = %+v", pr.Streams)
	}
	if pr := readPush(t, everything); len(pr.Streams) != 2 {
		t.Errorf("unfiltered client second message has %d streams, want 2", len(pr.Streams))
	}
}

func TestHub_CountTracksDisconnects(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	conn := dial(t, hub, wsURL)
	if hub.Count() != 1 {
		t.Fatalf("Count: got %d, want 1", hub.Count())
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Count after disconnect: got %d, want 0", hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RunCancelClosesClients(t *testing.T) {
	wsURL, hub, cancel := startHub(t)
	conn := dial(t, hub, wsURL)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close after cancel")
	}
	if hub.Count() != 0 {
		t.Errorf("Count after shutdown: got %d, want 0", hub.Count())
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := tail.New()
	hub.Publish([]types.Stream{stream("app", "info", "nobody listening")})
}

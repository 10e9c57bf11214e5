package telemetry

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rclink/pkg/engine"
	"rclink/pkg/link"
	"rclink/pkg/protocol"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg, engine.NewHub(), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/" + query
	return websocket.DefaultDialer.Dial(url, header)
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestStreamsEvents(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	conn, _, err := dial(t, ts, "", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var hello HelloMsg
	readJSON(t, conn, &hello)
	if hello.Op != OpHello || hello.Name != "rclink" {
		t.Fatalf("unexpected hello %+v", hello)
	}

	cmd := protocol.MotorCommand{Drive: 80}
	srv.broadcast(link.Event{Side: link.SideHub, Kind: link.EventCommand, Command: &cmd})

	var msg struct {
		Op    string `json:"op"`
		Event struct {
			Kind    string `json:"kind"`
			Side    string `json:"side"`
			Command struct {
				Drive int `json:"drive"`
			} `json:"command"`
		} `json:"event"`
	}
	readJSON(t, conn, &msg)
	if msg.Op != OpEvent || msg.Event.Kind != "command" || msg.Event.Side != "hub" || msg.Event.Command.Drive != 80 {
		t.Fatalf("unexpected event %+v", msg)
	}
}

func TestSubscribeFiltersKinds(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	conn, _, err := dial(t, ts, "", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	var hello HelloMsg
	readJSON(t, conn, &hello)

	sub := SubscribeMsg{Op: OpSubscribe, Kinds: []link.EventKind{link.EventTransition}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// the subscribe message is handled asynchronously; keep publishing until it applies
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var c *client
		for _, cl := range srv.snapshotClients() {
			c = cl
		}
		if c != nil && !c.wants(link.EventCommand) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	srv.broadcast(link.Event{Side: link.SideHub, Kind: link.EventCommand})
	srv.broadcast(link.Event{Side: link.SideHub, Kind: link.EventTransition, From: link.Connected, To: link.Disconnecting})

	var msg EventMsg
	readJSON(t, conn, &msg)
	if msg.Event.Kind != link.EventTransition || msg.Event.To != link.Disconnecting {
		t.Fatalf("unexpected event %+v", msg.Event)
	}
}

func TestStatusTracksTransitions(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	srv.broadcast(link.Event{Time: time.Unix(5, 0), Side: link.SideHub, Kind: link.EventTransition, From: link.Advertising, To: link.Connected, Reason: "peer connected"})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var status map[string]map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["hub"]["state"] != "connected" {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestTokenRequired(t *testing.T) {
	_, ts := newTestServer(t, Config{Secret: "pit-secret"})

	_, resp, err := dial(t, ts, "", nil)
	if err == nil {
		t.Fatalf("expected rejection without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	token, err := IssueToken("pit-secret", "dashboard", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := dial(t, ts, "", header)
	if err != nil {
		t.Fatalf("dial with header: %v", err)
	}
	var hello HelloMsg
	readJSON(t, conn, &hello)
	conn.Close()
	if hello.Subject != "dashboard" {
		t.Fatalf("unexpected subject %q", hello.Subject)
	}

	conn, _, err = dial(t, ts, "?token="+token, nil)
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	conn.Close()
}

func TestVerifierRejects(t *testing.T) {
	v, err := NewVerifier("pit-secret")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	wrong, _ := IssueToken("other-secret", "dashboard", time.Hour, time.Now())
	if _, err := v.Verify(wrong); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected wrong key rejection, got %v", err)
	}
	expired, _ := IssueToken("pit-secret", "dashboard", time.Minute, time.Now().Add(-time.Hour))
	if _, err := v.Verify(expired); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
	anonymous, _ := IssueToken("pit-secret", "", time.Hour, time.Now())
	if _, err := v.Verify(anonymous); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected missing subject rejection, got %v", err)
	}
	if _, err := NewVerifier(""); err == nil {
		t.Fatalf("expected empty secret rejection")
	}
}

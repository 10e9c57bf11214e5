package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"rclink/pkg/link"
	"rclink/pkg/protocol"
)

func TestJSONLWriterRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cmd := protocol.MotorCommand{Drive: -30, Steer: 70}

	in := make(chan link.Event, 2)
	in <- link.Event{Time: ts, Side: link.SideHub, Kind: link.EventTransition, From: link.Connected, To: link.Disconnecting, Reason: "liveness timeout"}
	in <- link.Event{Time: ts, Side: link.SideHub, Kind: link.EventCommand, From: link.Connected, To: link.Connected, Command: &cmd}
	close(in)
	w.Consume(context.Background(), in)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected lines: %q", lines)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["from"] != "connected" || rec["to"] != "disconnecting" || rec["ts"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected transition record %v", rec)
	}

	rec = nil
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["wire_hex"] != "e24600" || rec["drive"] != float64(-30) {
		t.Fatalf("unexpected command record %v", rec)
	}
	if _, ok := rec["from"]; ok {
		t.Fatalf("command record carries a transition: %v", rec)
	}
}

func TestJSONLWriterWithoutCommands(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, WithoutCommands())
	cmd := protocol.Stop
	_ = w.Write(link.Event{Kind: link.EventCommand, Command: &cmd})
	_ = w.Write(link.Event{Kind: link.EventMalformed, Reason: "decode command: wrong length 2"})

	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("expected one record, got %d: %s", n, buf.String())
	}
}

package logger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"rclink/pkg/link"
)

// JSONLWriter writes one JSON object per link event.
type JSONLWriter struct {
	enc          *json.Encoder
	skipCommands bool
}

type jsonRecord struct {
	TS      string `json:"ts"`
	Side    string `json:"side"`
	Kind    string `json:"kind"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Drive   *int8  `json:"drive,omitempty"`
	Steer   *int8  `json:"steer,omitempty"`
	WireHex string `json:"wire_hex,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Option func(*JSONLWriter)

// WithoutCommands drops per-command records and keeps transitions and faults.
func WithoutCommands() Option {
	return func(j *JSONLWriter) {
		j.skipCommands = true
	}
}

func NewJSONLWriter(w io.Writer, opts ...Option) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	j := &JSONLWriter{enc: enc}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *JSONLWriter) Consume(ctx context.Context, in <-chan link.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			_ = j.Write(ev)
		}
	}
}

func (j *JSONLWriter) Write(ev link.Event) error {
	if j.skipCommands && ev.Kind == link.EventCommand {
		return nil
	}
	rec := jsonRecord{
		TS:     ev.Time.UTC().Format(time.RFC3339Nano),
		Side:   string(ev.Side),
		Kind:   string(ev.Kind),
		Reason: ev.Reason,
	}
	if ev.Kind == link.EventTransition {
		rec.From = ev.From.String()
		rec.To = ev.To.String()
	}
	if ev.Command != nil {
		drive, steer := ev.Command.Drive, ev.Command.Steer
		rec.Drive = &drive
		rec.Steer = &steer
		rec.WireHex = hex.EncodeToString(ev.Command.Bytes())
	}
	return j.enc.Encode(rec)
}

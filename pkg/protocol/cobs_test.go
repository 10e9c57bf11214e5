package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"rclink/pkg/protocol"
)

func TestCobsDecodeSimple(t *testing.T) {
	decoded, err := protocol.CobsDecode([]byte{0x03, 0x11, 0x22})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 2 || decoded[0] != 0x11 || decoded[1] != 0x22 {
		t.Fatalf("unexpected decode result: %v", decoded)
	}
}

func TestCobsDecodeWithZero(t *testing.T) {
	frame := []byte{0x02, 0x11, 0x02, 0x22}
	decoded, err := protocol.CobsDecode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x11, 0x00, 0x22}
	if !bytes.Equal(decoded, want) {
		t.Fatalf("unexpected decode result: got %v want %v", decoded, want)
	}
}

func TestCobsDecodeInvalid(t *testing.T) {
	_, err := protocol.CobsDecode([]byte{0x00, 0x01})
	if !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame for invalid code 0x00, got %v", err)
	}
	_, err = protocol.CobsDecode([]byte{0x05, 0x01})
	if !errors.Is(err, protocol.ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame for truncated frame, got %v", err)
	}
}

func TestCobsEncodeHasNoDelimiter(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x00, 0x00, 0x00},
		{0x50, 0x00, 0x00},
		protocol.Stop.Bytes(),
		bytes.Repeat([]byte{0x01}, 300),
	}
	for _, in := range cases {
		enc := protocol.CobsEncode(in)
		if bytes.IndexByte(enc, protocol.FrameDelimiter) >= 0 {
			t.Fatalf("encoded frame contains delimiter: %v", enc)
		}
		dec, err := protocol.CobsDecode(enc)
		if err != nil {
			t.Fatalf("decode %v: %v", enc, err)
		}
		if !bytes.Equal(dec, in) {
			t.Fatalf("unexpected round trip: got %v want %v", dec, in)
		}
	}
}

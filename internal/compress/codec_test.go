package compress

import (
	"bytes"
	"math/rand"
	"testing"
)

func roundTrip(t *testing.T, payload []byte, p Params) []byte {
	t.Helper()
	coder := NewCoder()
	res, err := coder.Compress(p, payload, len(payload)*4+64, false)
	if err != nil {
		if _, ok := err.(*ErrRoundTripMismatch); !ok {
			t.Fatalf("Compress: %v", err)
		}
	}
	reversed := make([]byte, len(res.Data))
	for i, b := range res.Data {
		reversed[len(res.Data)-1-i] = b
	}
	out, err := coder.Decompress(p, reversed, len(payload))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d bytes", len(out), len(payload))
	}
	return res.Data
}

func defaultParams() Params {
	p := Params{ContextCount: 4}
	p.Weights[0], p.Contexts[0] = 1, 0x01
	p.Weights[1], p.Contexts[1] = 4, 0x03
	p.Weights[2], p.Contexts[2] = 4, 0x05
	p.Weights[3], p.Contexts[3] = 4, 0x13
	return p
}

func TestRoundTripEmpty(t *testing.T) {
	roundTrip(t, nil, defaultParams())
}

func TestRoundTripSmall(t *testing.T) {
	roundTrip(t, []byte("hello, world! this is a tiny payload."), defaultParams())
}

func TestRoundTripPseudorandom4KiB(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	payload := make([]byte, 4096)
	rng.Read(payload)
	roundTrip(t, payload, defaultParams())
}

func TestRoundTripRepetitive(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA, 0x00, 0xFF, 0x10}, 2048)
	roundTrip(t, payload, defaultParams())
}

func TestRoundTripMaxPayloadBoundary(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	payload := make([]byte, 65520)
	rng.Read(payload)
	roundTrip(t, payload, defaultParams())
}

func TestBufferOverflow(t *testing.T) {
	coder := NewCoder()
	payload := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(payload)
	_, err := coder.Compress(defaultParams(), payload, 4, false)
	if err != ErrBufferOverflow {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
}

func TestParamsStringRoundTrip(t *testing.T) {
	p := defaultParams()
	s := p.String()
	got, err := ParseParams(s)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if got != p {
		t.Fatalf("parse(format(x)) != x: got %+v, want %+v", got, p)
	}
}

func TestParamsStringRejectsBadLength(t *testing.T) {
	if _, err := ParseParams("04ffaa"); err == nil {
		t.Fatalf("expected error for short/mismatched string")
	}
}

func TestParamsStringRejectsOutOfRangeContextCount(t *testing.T) {
	if _, err := ParseParams("01ffaa"); err == nil {
		t.Fatalf("expected error for contextCount < 2")
	}
}

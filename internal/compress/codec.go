package compress

import (
	"errors"
	"fmt"
)

// ErrBufferOverflow is returned when a Compress pass would emit more
// bytes than the caller's cap allows.
var ErrBufferOverflow = errors.New("compress: buffer overflow")

// ErrRoundTripMismatch is a warning-level condition: Compress ran the
// round-trip check described in spec §4.3 and found divergent bytes.
// It is returned alongside a valid Result unless the caller requested
// strict mode.
type ErrRoundTripMismatch struct {
	// Offsets holds up to the first 10 divergent byte positions.
	Offsets []int
}

func (e *ErrRoundTripMismatch) Error() string {
	return fmt.Sprintf("compress: round-trip mismatch at %d byte position(s), first: %v", len(e.Offsets), e.Offsets)
}

// Stats carries developer diagnostics about a compress pass, mirroring
// the original tool's "cmax" instrumentation (the largest hash-table
// probe offset reached). cmd/pack prints it after a pack run; the
// elfling driver does not report it.
type Stats struct {
	MaxProbeOffset uint32
}

// Result is the output of a Compress call.
type Result struct {
	Data  []byte // the forward (non-reversed) encoded stream
	Stats Stats
}

// Coder owns the 64 MiB counter table shared by a compress/decompress
// pass. One Coder should be reused across calls in a process (the
// genetic search in particular runs thousands of compressions) rather
// than allocated per call.
type Coder struct {
	tab *table
}

// NewCoder allocates a Coder. The counter table is zeroed lazily per
// call for the planes actually used (see table.reset); Go's runtime
// already demand-zeroes the backing allocation.
func NewCoder() *Coder {
	return &Coder{tab: newTable()}
}

// Compress encodes in using params, capped at maxOut bytes. It returns
// ErrBufferOverflow if the cap is exceeded, and performs the mandatory
// round-trip verification described in spec §4.3/§9: the caller gets a
// Result either way, with a non-nil *ErrRoundTripMismatch error when
// decoding the (reversed) output does not reproduce in exactly, unless
// strict is true, in which case the mismatch is returned as the sole
// error.
func (c *Coder) Compress(params Params, in []byte, maxOut int, strict bool) (Result, error) {
	data, probeMax, err := c.compressSingle(params, in, maxOut)
	if err != nil {
		return Result{}, err
	}
	res := Result{Data: data, Stats: Stats{MaxProbeOffset: probeMax}}

	reversed := reverseBytes(data)
	got, decErr := c.Decompress(params, reversed, len(in))
	if decErr != nil {
		mismatch := &ErrRoundTripMismatch{Offsets: []int{0}}
		if strict {
			return Result{}, mismatch
		}
		return res, mismatch
	}
	var offsets []int
	for i := 0; i < len(in) && len(offsets) < 10; i++ {
		if i >= len(got) || got[i] != in[i] {
			offsets = append(offsets, i)
		}
	}
	if len(got) != len(in) {
		if len(offsets) == 0 {
			offsets = append(offsets, len(in))
		}
	}
	if len(offsets) > 0 {
		mismatch := &ErrRoundTripMismatch{Offsets: offsets}
		if strict {
			return Result{}, mismatch
		}
		return res, mismatch
	}
	return res, nil
}

// compressSingle is the bit-exact port of CompressSingle from the
// original tool (spec §4.1–§4.3): for each input byte, for each of its
// 8 bits MSB-first, mix, encode, update, advance.
func (c *Coder) compressSingle(params Params, in []byte, maxOut int) ([]byte, uint32, error) {
	m := newModel(c.tab, params)
	m.advance(true)
	enc := newRangeEncoder()
	var maxProbe uint32

	for _, b := range in {
		for i := 0; i < 8; i++ {
			n0, n1 := m.mix()
			y := int((b >> uint(7-i)) & 1)
			enc.encodeBit(n0, n1, y)
			m.applyCounts(y)
			m.win.pushBit(y)
			if i == 7 {
				m.win.rollByte()
			}
			m.advance(true)
			if len(enc.out) > maxOut {
				return nil, maxProbe, ErrBufferOverflow
			}
			for j := 0; j < params.ContextCount; j++ {
				if m.cp[j] > maxProbe {
					maxProbe = m.cp[j]
				}
			}
		}
	}
	out := enc.finish()
	if len(out) > maxOut {
		return nil, maxProbe, ErrBufferOverflow
	}
	return out, maxProbe, nil
}

// Decompress reads exactly outLen*8 bits from the reversed stream
// produced by Compress and reconstructs the original payload.
func (c *Coder) Decompress(params Params, reversed []byte, outLen int) ([]byte, error) {
	m := newModel(c.tab, params)
	m.advance(false)
	dec := newRangeDecoder(reversed)
	out := make([]byte, 0, outLen)

	for len(out) < outLen {
		var b int
		for i := 0; i < 8; i++ {
			n0, n1 := m.mix()
			y := dec.decodeBit(n0, n1)
			m.applyCounts(y)
			m.win.pushBit(y)
			if i == 7 {
				b = m.win.rollByte()
			}
			m.advance(false)
		}
		out = append(out, byte(b))
	}
	return out, nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

package compress

// rangeEncoder is the classical 32-bit arithmetic coder of spec §4.1:
// it narrows [x1,x2] toward the predicted split point xmid and emits a
// byte every time x1 and x2 agree on their top byte.
type rangeEncoder struct {
	x1, x2 uint32
	out    []byte
}

func newRangeEncoder() *rangeEncoder {
	return &rangeEncoder{x1: 0, x2: 0xFFFFFFFF}
}

// encodeBit narrows the interval for bit y given mixed frequencies
// n0, n1, and renormalizes, appending any emitted bytes to e.out.
func (e *rangeEncoder) encodeBit(n0, n1 uint32, y int) {
	xmid := e.x1 + uint32((uint64(n0)*uint64(e.x2-e.x1))/uint64(n0+n1))
	if y != 0 {
		e.x1 = xmid + 1
	} else {
		e.x2 = xmid
	}
	for (e.x1^e.x2)&0xFF000000 == 0 {
		e.out = append(e.out, byte(e.x2>>24))
		e.x1 <<= 8
		e.x2 = (e.x2 << 8) | 0xFF
	}
}

// finish drains renormalization and emits the final framing byte(s)
// described in spec §4.1, including the trailing-zero sentinel needed
// because the stream is read backwards by the runtime decompressor.
func (e *rangeEncoder) finish() []byte {
	for (e.x1^e.x2)&0xFF000000 == 0 {
		e.out = append(e.out, byte(e.x2>>24))
		e.x1 <<= 8
		e.x2 = (e.x2 << 8) | 0xFF
	}
	e.out = append(e.out, byte(e.x2>>24))
	if (e.x2>>16)&0xFF < 0xC3 {
		e.out = append(e.out, 0x00)
	}
	return e.out
}

// rangeDecoder mirrors rangeEncoder but reads the stream backwards: the
// cursor starts at the last 4 bytes of the encoded stream and walks
// toward byte 0 as bits are consumed.
type rangeDecoder struct {
	x1, x2 uint32
	data   []byte
	cursor int // index of the byte just past the 4 bytes currently in v
	v      uint32
}

func newRangeDecoder(data []byte) *rangeDecoder {
	d := &rangeDecoder{x1: 0, x2: 0xFFFFFFFF, data: data}
	d.cursor = len(data)
	d.v = d.readLast4()
	return d
}

// readLast4 reads the 4 bytes ending at d.cursor (exclusive), little
// endian, as described in spec §4.1. Missing leading bytes (near the
// very start of the reversed stream) read as zero.
func (d *rangeDecoder) readLast4() uint32 {
	var b [4]byte
	for i := 0; i < 4; i++ {
		idx := d.cursor - 4 + i
		if idx >= 0 && idx < len(d.data) {
			b[i] = d.data[idx]
		}
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// decodeBit computes xmid from the mixed frequencies, decides the bit
// from the current 4-byte window v, and renormalizes by shifting the
// window one byte further back through the stream.
func (d *rangeDecoder) decodeBit(n0, n1 uint32) int {
	xmid := d.x1 + uint32((uint64(n0)*uint64(d.x2-d.x1))/uint64(n0+n1))
	var y int
	if d.v <= xmid {
		d.x2 = xmid
		y = 0
	} else {
		d.x1 = xmid + 1
		y = 1
	}
	for (d.x1^d.x2)>>24 == 0 {
		d.x1 <<= 8
		d.x2 = (d.x2 << 8) | 0xFF
		d.cursor--
		// The 4-byte window slides one byte further toward the start
		// of the stream: drop the old high byte, bring in the new low
		// byte at the bottom.
		d.v = d.readLast4()
	}
	return y
}

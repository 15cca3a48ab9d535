// Package stub holds the precompiled decompression-stub templates and
// the handful of operations the linker needs on them: locating the
// signature marker that divides a template into prefix and suffix, and
// reading the 8 bytes that precede it.
//
// The templates themselves are opaque machine code — small
// hand-written decompressors for i386 and x86_64 Linux that mmap
// executable memory, unpack the arithmetic-coded payload appended
// after them at link time, and jump to the original entry point. This
// package never interprets their bytes beyond finding the marker; the
// patch offsets within a template are described separately, by
// architecture, in internal/archdesc.
package stub

import (
	"bytes"
	"fmt"

	"github.com/xyproto/elfling/internal/archdesc"
)

// Signature is the marker every precompiled template carries exactly
// once (spec §4.6 step 3). The linker splits the template here: the
// prefix survives into the final image with its patch words filled
// in, the suffix is copied to the head of the linked payload.
const Signature = "XXXX-Compressed code here-XXXX"

// Header is one precompiled decompression-stub template.
type Header struct {
	Arch archdesc.Arch
	Raw  []byte
}

// For returns the precompiled template for a.
func For(a archdesc.Arch) (Header, error) {
	switch a {
	case archdesc.Arch386:
		return Header{Arch: a, Raw: header32}, nil
	case archdesc.ArchAMD64:
		return Header{Arch: a, Raw: header64}, nil
	default:
		return Header{}, fmt.Errorf("stub: no precompiled header for architecture %v", a)
	}
}

// Split locates Signature in h.Raw and returns the prefix (kept
// verbatim, patch words and all, at the start of the output image)
// and the suffix (copied to the start of the linked payload).
func (h Header) Split() (prefix, suffix []byte, err error) {
	idx := bytes.Index(h.Raw, []byte(Signature))
	if idx < 0 {
		return nil, nil, fmt.Errorf("stub: signature not found in %v header", h.Arch)
	}
	if bytes.Index(h.Raw[idx+len(Signature):], []byte(Signature)) >= 0 {
		return nil, nil, fmt.Errorf("stub: signature appears more than once in %v header", h.Arch)
	}
	prefix = h.Raw[:idx]
	suffix = h.Raw[idx+len(Signature):]
	return prefix, suffix, nil
}

// PrecedingBytes returns the 8 bytes immediately before the signature,
// copied verbatim into the output image right after the prefix (spec
// §4.6 step 6, "F[sz..sz+8]").
func (h Header) PrecedingBytes() ([8]byte, error) {
	idx := bytes.Index(h.Raw, []byte(Signature))
	if idx < 8 {
		return [8]byte{}, fmt.Errorf("stub: fewer than 8 bytes precede the signature in %v header", h.Arch)
	}
	var out [8]byte
	copy(out[:], h.Raw[idx-8:idx])
	return out, nil
}

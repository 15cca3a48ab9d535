package link

import (
	"testing"

	"github.com/xyproto/elfling/internal/archdesc"
	"github.com/xyproto/elfling/internal/compress"
	"github.com/xyproto/elfling/internal/elfimg"
	"github.com/xyproto/elfling/internal/stub"
)

func defaultParams() compress.Params {
	p := compress.Params{ContextCount: 4}
	p.Weights[0], p.Contexts[0] = 1, 0x01
	p.Weights[1], p.Contexts[1] = 4, 0x03
	p.Weights[2], p.Contexts[2] = 4, 0x05
	p.Weights[3], p.Contexts[3] = 4, 0x13
	return p
}

func TestHashEmptyIsZero(t *testing.T) {
	if Hash("") != 0 {
		t.Fatalf("Hash(\"\") = %#x, want 0", Hash(""))
	}
}

func TestHashIsDeterministic(t *testing.T) {
	a := Hash("glRotatef")
	b := Hash("glRotatef")
	if a != b {
		t.Fatalf("Hash not deterministic: %#x != %#x", a, b)
	}
	if Hash("glRotatef") == Hash("SDL_Init") {
		t.Fatalf("distinct names hashed to the same value (%#x) — suspicious", a)
	}
}

func TestImportSetOrdersLexicographically(t *testing.T) {
	s := newImportSet()
	s.Add("zeta")
	s.Add("alpha")
	s.Add("mu")
	s.Add("alpha") // duplicate, ignored
	got := s.Names()
	want := []string{"alpha", "mu", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
	idx, ok := s.IndexOf("mu")
	if !ok || idx != 1 {
		t.Fatalf("IndexOf(mu) = (%d,%v), want (1,true)", idx, ok)
	}
}

func TestLinkOneExternalCall(t *testing.T) {
	raw := buildELF32Object()
	img, err := elfimg.Load(raw)
	if err != nil {
		t.Fatalf("elfimg.Load: %v", err)
	}
	if img.Arch != archdesc.Arch386 {
		t.Fatalf("Arch = %v, want Arch386", img.Arch)
	}

	res, err := Link(img, Options{InitialParams: defaultParams()})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	if len(res.Imports) != 1 || res.Imports[0] != "puts" {
		t.Fatalf("Imports = %v, want [puts]", res.Imports)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}

	desc, _ := archdesc.For(archdesc.Arch386)
	wantImportsBytes := desc.SlotWidth * (1 + 1) // one import + one terminator slot
	h, _ := stub.For(archdesc.Arch386)
	_, suffix, _ := h.Split()
	minPayload := len(suffix) + wantImportsBytes
	if res.PayloadSize < minPayload {
		t.Fatalf("PayloadSize = %d, want at least %d (suffix + import table)", res.PayloadSize, minPayload)
	}

	if res.CommonBase%256 != 0 {
		t.Fatalf("CommonBase = %d, not a multiple of 256", res.CommonBase)
	}
	if res.CommonBase < res.PayloadSize {
		t.Fatalf("CommonBase %d < PayloadSize %d", res.CommonBase, res.PayloadSize)
	}

	if len(res.SectionOrder) == 0 || res.SectionOrder[0] != ".text" {
		t.Fatalf("SectionOrder = %v, want .text first", res.SectionOrder)
	}

	if res.Image[0] != 0x7F || res.Image[1] != 'E' {
		t.Fatalf("output image does not start with the stub prefix's ELF magic")
	}
}

func TestLinkRejectsMissingEntry(t *testing.T) {
	raw := buildELF32Object()
	// Corrupt the only "_start" name byte so findEntry fails.
	idx := indexOfString(raw, "_start")
	if idx < 0 {
		t.Fatalf("test fixture missing _start name bytes")
	}
	raw[idx] = 'X'

	img, err := elfimg.Load(raw)
	if err != nil {
		t.Fatalf("elfimg.Load: %v", err)
	}
	if _, err := Link(img, Options{InitialParams: defaultParams()}); err == nil {
		t.Fatalf("expected error when _start is absent")
	}
}

func indexOfString(raw []byte, s string) int {
	b := []byte(s)
outer:
	for i := 0; i+len(b) <= len(raw); i++ {
		for j := range b {
			if raw[i+j] != b[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

package stub

import (
	"testing"

	"github.com/xyproto/elfling/internal/archdesc"
)

func TestSignatureAppearsExactlyOnce(t *testing.T) {
	for _, a := range []archdesc.Arch{archdesc.Arch386, archdesc.ArchAMD64} {
		h, err := For(a)
		if err != nil {
			t.Fatalf("For(%v): %v", a, err)
		}
		prefix, suffix, err := h.Split()
		if err != nil {
			t.Fatalf("Split(%v): %v", a, err)
		}
		if len(prefix)+len(Signature)+len(suffix) != len(h.Raw) {
			t.Fatalf("%v: prefix+signature+suffix length mismatch", a)
		}
	}
}

func TestPatchOffsetsFallInsidePrefix(t *testing.T) {
	for _, a := range []archdesc.Arch{archdesc.Arch386, archdesc.ArchAMD64} {
		h, err := For(a)
		if err != nil {
			t.Fatalf("For(%v): %v", a, err)
		}
		d, err := archdesc.For(a)
		if err != nil {
			t.Fatalf("archdesc.For(%v): %v", a, err)
		}
		prefix, _, err := h.Split()
		if err != nil {
			t.Fatalf("Split(%v): %v", a, err)
		}
		if d.PatchFileSize+d.PatchFileSizeWidth > len(prefix) {
			t.Fatalf("%v: PatchFileSize field runs past end of prefix", a)
		}
		if d.PatchDataEnd+4 > len(prefix) {
			t.Fatalf("%v: PatchDataEnd field runs past end of prefix", a)
		}
	}
}

func TestPrecedingBytes(t *testing.T) {
	h, err := For(archdesc.Arch386)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	got, err := h.PrecedingBytes()
	if err != nil {
		t.Fatalf("PrecedingBytes: %v", err)
	}
	want := [8]byte{0x00, 0x00, 0x00, 0x00, 0xC3, 0x00, 0x00, 0x00}
	if got != want {
		t.Fatalf("PrecedingBytes = %v, want %v", got, want)
	}
}

func TestForRejectsUnknownArch(t *testing.T) {
	if _, err := For(archdesc.ArchUnknown); err == nil {
		t.Fatalf("expected error for ArchUnknown")
	}
}

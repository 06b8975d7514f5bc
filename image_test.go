package macho

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/leanderhendrikx/weedless/types"
)

func TestOpenRejectsUnsupportedMagic(t *testing.T) {
	data := make([]byte, 64)
	data[0], data[1], data[2], data[3] = 0xbe, 0xba, 0xfe, 0xca // decodes (LE) to MagicFat
	_, err := Open(data)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("got %v, want ErrUnsupportedImage", err)
	}
}

func TestLoadCommandsAndFindDyldInfo(t *testing.T) {
	dylinker := buildDylinkerCmd("/usr/lib/dyld")
	dylib := BuildLoadDylibCommand("/usr/lib/libSystem.B.dylib")
	seg := buildSegment64Cmd("__TEXT", 4096)
	dyldInfo := buildDyldInfoCmd(4096, 64)

	fx := newFixture(t, [][]byte{dylinker, dylib, seg, dyldInfo}, 4096, 4096+64)
	img, err := Open(fx.data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cmds, err := img.LoadCommands()
	if err != nil {
		t.Fatalf("LoadCommands: %v", err)
	}
	if len(cmds) != 4 {
		t.Fatalf("got %d load commands, want 4", len(cmds))
	}
	if cmds[0].Kind != types.LC_LOAD_DYLINKER {
		t.Errorf("cmds[0].Kind = %v", cmds[0].Kind)
	}
	if cmds[1].Kind != types.LC_LOAD_DYLIB {
		t.Errorf("cmds[1].Kind = %v", cmds[1].Kind)
	}

	info, _, err := img.FindDyldInfo()
	if err != nil {
		t.Fatalf("FindDyldInfo: %v", err)
	}
	want := types.DyldInfoCmd{
		LoadCmd:      types.LC_DYLD_INFO_ONLY,
		Len:          uint32(len(dyldInfo)),
		LazyBindOff:  4096,
		LazyBindSize: 64,
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("dyld info mismatch (-want +got):\n%s", diff)
	}

	off, err := img.FirstSegmentFileOffset()
	if err != nil {
		t.Fatalf("FirstSegmentFileOffset: %v", err)
	}
	if off != 4096 {
		t.Errorf("FirstSegmentFileOffset = %d, want 4096", off)
	}
}

func TestLoadCommandsTruncated(t *testing.T) {
	data := make([]byte, types.FileHeaderSize64+8)
	data[0], data[1], data[2], data[3] = 0xcf, 0xfa, 0xed, 0xfe
	// Claim one command but leave no room for it.
	data[16] = 1
	data[20] = 200

	img, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := img.LoadCommands(); err == nil {
		t.Fatal("expected ErrTruncatedCommands")
	}
}

func TestDylibPath(t *testing.T) {
	dylib := BuildLoadDylibCommand("/usr/lib/libSystem.B.dylib")
	fx := newFixture(t, [][]byte{dylib}, 4096, 4096)
	img, err := Open(fx.data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cmds, err := img.LoadCommands()
	if err != nil {
		t.Fatalf("LoadCommands: %v", err)
	}
	if got := DylibPath(img, cmds[0]); got != "/usr/lib/libSystem.B.dylib" {
		t.Errorf("DylibPath = %q", got)
	}
}

package macho

import (
	"encoding/binary"
	"testing"

	"github.com/leanderhendrikx/weedless/pkg/leb128"
	"github.com/leanderhendrikx/weedless/types"
)

// buildDylinkerCmd constructs an LC_LOAD_DYLINKER record: 12-byte fixed
// prefix (cmd, cmdsize, name offset) followed by the NUL-terminated path,
// padded to a multiple of 8.
func buildDylinkerCmd(path string) []byte {
	const nameOffset = 12
	raw := nameOffset + uint32(len(path)) + 1
	cmdsize := uint32(types.RoundUp(uint64(raw), 8))

	b := make([]byte, cmdsize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(types.LC_LOAD_DYLINKER))
	binary.LittleEndian.PutUint32(b[4:8], cmdsize)
	binary.LittleEndian.PutUint32(b[8:12], nameOffset)
	copy(b[nameOffset:], path)
	return b
}

// buildSegment64Cmd constructs a minimal LC_SEGMENT_64 record (no sections)
// with the given segment name and file offset.
func buildSegment64Cmd(name string, fileOff uint64) []byte {
	const size = 72
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], uint32(types.LC_SEGMENT_64))
	binary.LittleEndian.PutUint32(b[4:8], size)
	copy(b[8:24], name)
	binary.LittleEndian.PutUint64(b[40:48], fileOff)
	return b
}

// buildDyldInfoCmd constructs an LC_DYLD_INFO_ONLY record whose only
// populated fields are lazy_bind_off/lazy_bind_size — the only stream this
// package reads.
func buildDyldInfoCmd(lazyBindOff, lazyBindSize uint32) []byte {
	const size = 48
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], uint32(types.LC_DYLD_INFO_ONLY))
	binary.LittleEndian.PutUint32(b[4:8], size)
	binary.LittleEndian.PutUint32(b[32:36], lazyBindOff)
	binary.LittleEndian.PutUint32(b[36:40], lazyBindSize)
	return b
}

// fixture is a synthetic, minimal Mach-O 64 image assembled from explicit
// load-command blocks, used in place of a real compiled binary.
type fixture struct {
	data            []byte
	firstSegFileOff int
	cmdsEnd         int
}

// newFixture lays out a header, the given load-command blocks in order,
// zero-filled reserve up to firstSegFileOff, and totalSize-firstSegFileOff
// bytes of (initially zero) "segment" content after it.
func newFixture(t *testing.T, cmds [][]byte, firstSegFileOff, totalSize int) *fixture {
	t.Helper()

	sizeofcmds := 0
	for _, c := range cmds {
		sizeofcmds += len(c)
	}
	cmdsEnd := types.FileHeaderSize64 + sizeofcmds
	if cmdsEnd > firstSegFileOff {
		t.Fatalf("load commands (%d bytes) overflow reserve before first segment (%d)", sizeofcmds, firstSegFileOff)
	}

	data := make([]byte, totalSize)
	binary.LittleEndian.PutUint32(data[0:4], uint32(types.Magic64))
	binary.LittleEndian.PutUint32(data[4:8], uint32(types.CPUAmd64))
	binary.LittleEndian.PutUint32(data[12:16], uint32(types.MH_EXECUTE))
	binary.LittleEndian.PutUint32(data[16:20], uint32(len(cmds)))
	binary.LittleEndian.PutUint32(data[20:24], uint32(sizeofcmds))

	off := types.FileHeaderSize64
	for _, c := range cmds {
		copy(data[off:], c)
		off += len(c)
	}

	return &fixture{data: data, firstSegFileOff: firstSegFileOff, cmdsEnd: cmdsEnd}
}

// buildLazyBindEntryIMM encodes one lazy-bind entry using the IMM ordinal
// form: SET_DYLIB_ORDINAL_IMM, SET_SYMBOL_TRAILING_FLAGS_IMM, DO_BIND, DONE.
func buildLazyBindEntryIMM(ordinal byte, symbol string) []byte {
	b := []byte{byte(types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM) | (ordinal & types.BIND_IMMEDIATE_MASK)}
	b = append(b, byte(types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM))
	b = append(b, []byte(symbol)...)
	b = append(b, 0)
	b = append(b, byte(types.BIND_OPCODE_DO_BIND))
	b = append(b, byte(types.BIND_OPCODE_DONE))
	return b
}

// buildLazyBindEntryULEB encodes one lazy-bind entry using the ULEB ordinal
// form, with the ordinal's ULEB payload occupying exactly payloadLen bytes.
func buildLazyBindEntryULEB(ordinal uint64, payloadLen int, symbol string) []byte {
	payload := make([]byte, payloadLen)
	if _, err := leb128.Encode(payload, ordinal, payloadLen); err != nil {
		panic(err)
	}
	b := []byte{byte(types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB)}
	b = append(b, payload...)
	b = append(b, byte(types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM))
	b = append(b, []byte(symbol)...)
	b = append(b, 0)
	b = append(b, byte(types.BIND_OPCODE_DO_BIND))
	b = append(b, byte(types.BIND_OPCODE_DONE))
	return b
}

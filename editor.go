package macho

import (
	"bytes"
	"encoding/binary"

	"github.com/leanderhendrikx/weedless/types"
)

// AppendLoadCommand copies block, a complete load-command record, into the
// header's zero-filled reserve — the bytes between the end of the current
// load-command area and the first segment's file offset — and bumps ncmds
// and sizeofcmds to account for it.
//
// On any failure no bytes are written.
func (img *Image) AppendLoadCommand(block []byte) error {
	if len(block)%8 != 0 {
		return &FormatError{0, ErrMalformedImage}
	}

	gapStart := types.FileHeaderSize64 + int(img.Header.SizeCommands)
	gapEndU, err := img.FirstSegmentFileOffset()
	if err != nil {
		return err
	}
	gapEnd := int(gapEndU)

	if gapEnd-gapStart < len(block) {
		return &FormatError{int64(gapStart), ErrInsufficientHeaderSpace}
	}

	gap := img.Data[gapStart : gapStart+len(block)]
	if !bytes.Equal(gap, make([]byte, len(block))) {
		return &FormatError{int64(gapStart), ErrHeaderNotZeroPadded}
	}

	copy(gap, block)

	img.Header.NCommands++
	img.Header.SizeCommands += uint32(len(block))
	binary.LittleEndian.PutUint32(img.Data[16:20], img.Header.NCommands)
	binary.LittleEndian.PutUint32(img.Data[20:24], img.Header.SizeCommands)

	return nil
}

// BuildLoadDylibCommand constructs an LC_LOAD_DYLIB record for the given
// install-name path, sized and padded per the on-disk dylib_command layout:
// a 24-byte fixed prefix (types.DylibCmdSize), the NUL-terminated path
// starting at offset 24, and zero padding out to the next multiple of 8.
func BuildLoadDylibCommand(path string) []byte {
	nameOffset := uint32(types.DylibCmdSize)
	raw := nameOffset + uint32(len(path)) + 1
	cmdsize := uint32(types.RoundUp(uint64(raw), 8))

	b := make([]byte, cmdsize)
	c := types.DylibCmd{
		LoadCmd:        types.LC_LOAD_DYLIB,
		Len:            cmdsize,
		Name:           nameOffset,
		Time:           2,
		CurrentVersion: 1,
		CompatVersion:  1,
	}
	c.Put(b, binary.LittleEndian)
	copy(b[nameOffset:], path)
	// b[nameOffset+len(path):] is already zero (terminator plus padding).
	return b
}

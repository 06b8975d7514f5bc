// Package macho patches the load-command region of a Mach-O 64-bit image in
// place: it appends new LC_LOAD_DYLIB commands into the header's zero-filled
// reserve and rewrites dylib ordinals in the lazy-bind opcode stream. It
// never touches segment contents, relocations, or the rebase/export/weak-bind
// streams.
package macho

import (
	"bytes"
	"encoding/binary"

	"github.com/leanderhendrikx/weedless/types"
)

// Image is a typed, mutable view over a Mach-O 64-bit file held entirely in
// memory (typically a memory-mapped file — see WithMappedFile). All offsets
// are absolute byte offsets into Data.
type Image struct {
	Data   []byte
	Header types.FileHeader
}

// Open parses the fixed header at the start of data. data is not copied; the
// returned Image aliases it. AppendLoadCommand updates both Header and the
// header bytes in data, and it and the bind-stream rewriters mutate data
// directly.
func Open(data []byte) (*Image, error) {
	if len(data) < types.FileHeaderSize64 {
		return nil, &FormatError{0, ErrUnsupportedImage}
	}

	magic := types.Magic(binary.LittleEndian.Uint32(data[0:4]))
	if magic != types.Magic64 {
		return nil, &FormatError{0, ErrUnsupportedImage}
	}

	h := types.FileHeader{
		Magic:        magic,
		CPU:          types.CPU(binary.LittleEndian.Uint32(data[4:8])),
		SubCPU:       types.CPUSubtype(binary.LittleEndian.Uint32(data[8:12])),
		Type:         types.HeaderFileType(binary.LittleEndian.Uint32(data[12:16])),
		NCommands:    binary.LittleEndian.Uint32(data[16:20]),
		SizeCommands: binary.LittleEndian.Uint32(data[20:24]),
		Flags:        types.HeaderFlag(binary.LittleEndian.Uint32(data[24:28])),
		Reserved:     binary.LittleEndian.Uint32(data[28:32]),
	}

	return &Image{Data: data, Header: h}, nil
}

// LoadCommand is one record yielded by LoadCommands: its kind, size, and the
// absolute file offset of its first byte (the cmd/cmdsize header).
type LoadCommand struct {
	Kind   types.LoadCmd
	Size   uint32
	Offset int
}

// Raw returns the command's full cmdsize bytes.
func (lc LoadCommand) Raw(img *Image) []byte {
	return img.Data[lc.Offset : lc.Offset+int(lc.Size)]
}

// LoadCommands walks the load-command area, yielding exactly Header.NCommands
// records by advancing each command's Size starting at the end of the fixed
// header. It fails with ErrTruncatedCommands if that walk would read past
// the declared sizeofcmds, or ErrMalformedImage if any cmdsize is zero (an
// infinite loop otherwise).
func (img *Image) LoadCommands() ([]LoadCommand, error) {
	cmds := make([]LoadCommand, 0, img.Header.NCommands)
	off := types.FileHeaderSize64
	end := types.FileHeaderSize64 + int(img.Header.SizeCommands)
	if end > len(img.Data) {
		return nil, &FormatError{int64(off), ErrTruncatedCommands}
	}

	for i := uint32(0); i < img.Header.NCommands; i++ {
		if off+8 > end {
			return nil, &FormatError{int64(off), ErrTruncatedCommands}
		}
		kind := types.LoadCmd(binary.LittleEndian.Uint32(img.Data[off:]))
		size := binary.LittleEndian.Uint32(img.Data[off+4:])
		if size == 0 {
			return nil, &FormatError{int64(off), ErrMalformedImage}
		}
		if off+int(size) > end {
			return nil, &FormatError{int64(off), ErrTruncatedCommands}
		}
		cmds = append(cmds, LoadCommand{Kind: kind, Size: size, Offset: off})
		off += int(size)
	}
	return cmds, nil
}

// FindLoadCommand returns the first load command for which pred reports
// true, scanning in file order.
func (img *Image) FindLoadCommand(pred func(LoadCommand) bool) (LoadCommand, bool, error) {
	cmds, err := img.LoadCommands()
	if err != nil {
		return LoadCommand{}, false, err
	}
	for _, c := range cmds {
		if pred(c) {
			return c, true, nil
		}
	}
	return LoadCommand{}, false, nil
}

// FindDyldInfo returns the unique LC_DYLD_INFO_ONLY command, parsed. Fails
// with ErrMissingDyldInfo if none is present, ErrMalformedImage if more than
// one is.
func (img *Image) FindDyldInfo() (types.DyldInfoCmd, LoadCommand, error) {
	cmds, err := img.LoadCommands()
	if err != nil {
		return types.DyldInfoCmd{}, LoadCommand{}, err
	}

	var found *LoadCommand
	for i := range cmds {
		if cmds[i].Kind != types.LC_DYLD_INFO_ONLY {
			continue
		}
		if found != nil {
			return types.DyldInfoCmd{}, LoadCommand{}, &FormatError{int64(cmds[i].Offset), ErrMalformedImage}
		}
		found = &cmds[i]
	}
	if found == nil {
		return types.DyldInfoCmd{}, LoadCommand{}, &FormatError{int64(types.FileHeaderSize64), ErrMissingDyldInfo}
	}

	b := found.Raw(img)
	info := types.DyldInfoCmd{
		LoadCmd:      found.Kind,
		Len:          found.Size,
		RebaseOff:    binary.LittleEndian.Uint32(b[8:12]),
		RebaseSize:   binary.LittleEndian.Uint32(b[12:16]),
		BindOff:      binary.LittleEndian.Uint32(b[16:20]),
		BindSize:     binary.LittleEndian.Uint32(b[20:24]),
		WeakBindOff:  binary.LittleEndian.Uint32(b[24:28]),
		WeakBindSize: binary.LittleEndian.Uint32(b[28:32]),
		LazyBindOff:  binary.LittleEndian.Uint32(b[32:36]),
		LazyBindSize: binary.LittleEndian.Uint32(b[36:40]),
		ExportOff:    binary.LittleEndian.Uint32(b[40:44]),
		ExportSize:   binary.LittleEndian.Uint32(b[44:48]),
	}
	return info, *found, nil
}

// FindSegment returns the first LC_SEGMENT_64 command whose NUL-padded
// 16-byte segname matches name.
func (img *Image) FindSegment(name string) (types.Segment64, bool, error) {
	cmds, err := img.LoadCommands()
	if err != nil {
		return types.Segment64{}, false, err
	}
	var want [16]byte
	copy(want[:], name)

	for _, c := range cmds {
		if c.Kind != types.LC_SEGMENT_64 {
			continue
		}
		b := c.Raw(img)
		var segname [16]byte
		copy(segname[:], b[8:24])
		if !bytes.Equal(segname[:], want[:]) {
			continue
		}
		return types.Segment64{
			LoadCmd: c.Kind,
			Len:     c.Size,
			Name:    segname,
			Addr:    binary.LittleEndian.Uint64(b[24:32]),
			Memsz:   binary.LittleEndian.Uint64(b[32:40]),
			Offset:  binary.LittleEndian.Uint64(b[40:48]),
			Filesz:  binary.LittleEndian.Uint64(b[48:56]),
		}, true, nil
	}
	return types.Segment64{}, false, nil
}

// FirstSegmentFileOffset returns the lowest nonzero file offset among all
// LC_SEGMENT_64 commands: the end of the header's reserved gap.
func (img *Image) FirstSegmentFileOffset() (uint64, error) {
	cmds, err := img.LoadCommands()
	if err != nil {
		return 0, err
	}
	var min uint64
	found := false
	for _, c := range cmds {
		if c.Kind != types.LC_SEGMENT_64 {
			continue
		}
		b := c.Raw(img)
		off := binary.LittleEndian.Uint64(b[40:48])
		if off == 0 {
			continue
		}
		if !found || off < min {
			min = off
			found = true
		}
	}
	if !found {
		return 0, &FormatError{int64(types.FileHeaderSize64), ErrMalformedImage}
	}
	return min, nil
}

// pathAt reads a NUL-terminated string out of a load command's bytes
// starting at the given offset (relative to the command's own first byte),
// the way dylib.name.offset and dylinker.name.offset address their payload.
func pathAt(cmd []byte, nameOffset uint32) string {
	if int(nameOffset) >= len(cmd) {
		return ""
	}
	rest := cmd[nameOffset:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	return string(rest)
}

// DylibPath returns the install-name/path string embedded in a
// dylib-referencing load command (LC_LOAD_DYLIB and its variants, or
// LC_LOAD_DYLINKER), read via its own name offset field.
func DylibPath(img *Image, lc LoadCommand) string {
	b := lc.Raw(img)
	if lc.Kind == types.LC_LOAD_DYLINKER {
		var c types.DylinkerCmd
		c.Get(b, binary.LittleEndian)
		return pathAt(b, c.Name)
	}
	var c types.DylibCmd
	c.Get(b, binary.LittleEndian)
	return pathAt(b, c.Name)
}

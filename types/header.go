package types

import (
	"encoding/binary"
	"fmt"
)

// A FileHeader represents a Mach-O 64-bit file header (mach_header_64).
type FileHeader struct {
	Magic        Magic
	CPU          CPU
	SubCPU       CPUSubtype
	Type         HeaderFileType
	NCommands    uint32
	SizeCommands uint32
	Flags        HeaderFlag
	Reserved     uint32
}

// Put encodes the header into b in the given byte order, returning the
// number of bytes written (28 for the 32-bit header, 32 for the 64-bit one).
func (h *FileHeader) Put(b []byte, o binary.ByteOrder) int {
	o.PutUint32(b[0:], uint32(h.Magic))
	o.PutUint32(b[4:], uint32(h.CPU))
	o.PutUint32(b[8:], uint32(h.SubCPU))
	o.PutUint32(b[12:], uint32(h.Type))
	o.PutUint32(b[16:], h.NCommands)
	o.PutUint32(b[20:], h.SizeCommands)
	o.PutUint32(b[24:], uint32(h.Flags))
	if h.Magic == Magic32 {
		return FileHeaderSize32
	}
	o.PutUint32(b[28:], h.Reserved)
	return FileHeaderSize64
}

const (
	FileHeaderSize32 = 7 * 4
	FileHeaderSize64 = 8 * 4
)

type Magic uint32

const (
	Magic32  Magic = 0xfeedface
	Magic64  Magic = 0xfeedfacf
	MagicFat Magic = 0xcafebabe
)

var magicStrings = []IntName{
	{uint32(Magic32), "32-bit MachO"},
	{uint32(Magic64), "64-bit MachO"},
	{uint32(MagicFat), "Fat MachO"},
}

func (i Magic) String() string { return StringName(uint32(i), magicStrings, false) }

// A HeaderFileType is the Mach-O file type, e.g. an object file, executable, or dynamic library.
type HeaderFileType uint32

const (
	MH_OBJECT   HeaderFileType = 0x1 // relocatable object file
	MH_EXECUTE  HeaderFileType = 0x2 // demand paged executable file
	MH_DYLIB    HeaderFileType = 0x6 // dynamically bound shared library
	MH_DYLINKER HeaderFileType = 0x7 // dynamic link editor
	MH_BUNDLE   HeaderFileType = 0x8 // dynamically bound bundle file
)

var fileTypeStrings = []IntName{
	{uint32(MH_OBJECT), "Object"},
	{uint32(MH_EXECUTE), "Executable"},
	{uint32(MH_DYLIB), "Dylib"},
	{uint32(MH_DYLINKER), "Dylinker"},
	{uint32(MH_BUNDLE), "Bundle"},
}

func (t HeaderFileType) String() string { return StringName(uint32(t), fileTypeStrings, false) }

type HeaderFlag uint32

const (
	NoUndefs   HeaderFlag = 0x1
	TwoLevel   HeaderFlag = 0x80
	PIE        HeaderFlag = 0x200000
)

func (f HeaderFlag) TwoLevel() bool { return (f & TwoLevel) != 0 }
func (f HeaderFlag) PIE() bool      { return (f & PIE) != 0 }

func (h FileHeader) String() string {
	return fmt.Sprintf(
		"Magic    = %s\nType     = %s\nCPU      = %s\nCommands = %d (size %d)\n",
		h.Magic, h.Type, h.CPU, h.NCommands, h.SizeCommands,
	)
}

package macho

import (
	"bytes"

	"github.com/leanderhendrikx/weedless/pkg/leb128"
	"github.com/leanderhendrikx/weedless/types"
)

// OrdinalKind distinguishes the two rewritable dylib-ordinal opcode forms.
type OrdinalKind int

const (
	// OrdinalNone means the entry's ordinal is not rewritable (e.g. a
	// special-immediate form — self, main executable, flat-lookup).
	OrdinalNone OrdinalKind = iota
	OrdinalIMM
	OrdinalULEB
)

// LazyBindEntry records, for one occurrence of an imported symbol in the
// lazy-bind opcode stream, where its symbol name and dylib-ordinal opcode
// live in the image, so the ordinal can be rewritten without re-walking the
// stream.
type LazyBindEntry struct {
	SymbolName string

	Kind OrdinalKind
	// OrdinalOffset is the absolute offset of the dylib-ordinal opcode byte
	// itself (the opcode byte IS the IMM value; for ULEB it is the opcode
	// byte whose payload follows at OrdinalOffset+1).
	OrdinalOffset int
	// ULEBPayloadLen is the number of bytes the original ULEB payload
	// occupied (terminator included). Only meaningful when Kind is
	// OrdinalULEB; rewrites must reuse exactly this many bytes.
	ULEBPayloadLen int
}

// Ordinal returns the entry's current dylib ordinal.
func (e LazyBindEntry) Ordinal(img *Image) (uint64, error) {
	switch e.Kind {
	case OrdinalIMM:
		return uint64(img.Data[e.OrdinalOffset] & types.BIND_IMMEDIATE_MASK), nil
	case OrdinalULEB:
		v, _, err := leb128.Decode(img.Data, e.OrdinalOffset+1, e.OrdinalOffset+1+e.ULEBPayloadLen)
		return v, err
	default:
		return 0, nil
	}
}

// SetOrdinal rewrites the entry's dylib ordinal to n in place. For the IMM
// form n must fit in 4 bits. For the ULEB form the payload is re-encoded to
// occupy exactly its original byte length, so no other opcode in the stream
// shifts.
func (e LazyBindEntry) SetOrdinal(n uint64, img *Image) error {
	switch e.Kind {
	case OrdinalIMM:
		if n > 15 {
			return ErrOrdinalOutOfImmRange
		}
		img.Data[e.OrdinalOffset] = byte(types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM) | byte(n&types.BIND_IMMEDIATE_MASK)
		return nil
	case OrdinalULEB:
		_, err := leb128.Encode(img.Data[e.OrdinalOffset+1:], n, e.ULEBPayloadLen)
		return err
	default:
		return nil
	}
}

// WalkLazyBinds parses the lazy-bind opcode stream at data[off:off+size]
// (the file offset and size carried by LC_DYLD_INFO_ONLY) into a list of
// rewritable symbol-ordinal entries. Only SET_DYLIB_ORDINAL_IMM and
// SET_DYLIB_ORDINAL_ULEB are recorded as rewritable; every other opcode is
// either consumed for its side effect on the rolling cursor (skip payload
// bytes) or ignored.
func WalkLazyBinds(data []byte, off, size int) ([]LazyBindEntry, error) {
	stream := data[off : off+size]

	var entries []LazyBindEntry
	var cur LazyBindEntry
	haveSymbol, haveOrdinal := false, false

	i := 0
	for i < len(stream) {
		opcode := stream[i] & types.BIND_OPCODE_MASK

		switch opcode {
		case types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM:
			nameStart := i + 1
			nul := bytes.IndexByte(stream[nameStart:], 0)
			if nul < 0 {
				return nil, &FormatError{int64(off + nameStart), ErrMalformedImage}
			}
			cur.SymbolName = string(stream[nameStart : nameStart+nul])
			haveSymbol = true
			i = nameStart + nul + 1

		case types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM:
			cur.Kind = OrdinalIMM
			cur.OrdinalOffset = off + i
			haveOrdinal = true
			i++

		case types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB:
			cur.Kind = OrdinalULEB
			cur.OrdinalOffset = off + i
			haveOrdinal = true
			_, n, err := leb128.Decode(stream, i+1, len(stream))
			if err != nil {
				return nil, err
			}
			cur.ULEBPayloadLen = n
			i += 1 + n

		case types.BIND_OPCODE_DONE:
			if haveSymbol && haveOrdinal {
				entries = append(entries, cur)
			}
			cur = LazyBindEntry{}
			haveSymbol, haveOrdinal = false, false
			i++

		case types.BIND_OPCODE_SET_DYLIB_SPECIAL_IMM,
			types.BIND_OPCODE_SET_TYPE_IMM,
			types.BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED,
			types.BIND_OPCODE_THREADED,
			types.BIND_OPCODE_DO_BIND:
			i++

		case types.BIND_OPCODE_SET_ADDEND_SLEB,
			types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB,
			types.BIND_OPCODE_ADD_ADDR_ULEB:
			_, n, err := leb128.Decode(stream, i+1, len(stream))
			if err != nil {
				return nil, err
			}
			i += 1 + n

		case types.BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB:
			_, n, err := leb128.Decode(stream, i+1, len(stream))
			if err != nil {
				return nil, err
			}
			i += 1 + n

		case types.BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB:
			_, n1, err := leb128.Decode(stream, i+1, len(stream))
			if err != nil {
				return nil, err
			}
			_, n2, err := leb128.Decode(stream, i+1+n1, len(stream))
			if err != nil {
				return nil, err
			}
			i += 1 + n1 + n2

		default:
			i++
		}
	}

	return entries, nil
}

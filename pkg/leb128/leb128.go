// Package leb128 decodes and encodes unsigned LEB128 integers the way the
// dyld lazy-bind opcode stream uses them: a sequence of 7-bit groups, high
// bit set on every byte but the last.
//
// Based on: https://opensource.apple.com/source/dyld/dyld-132.13/src/ImageLoaderMachOCompressed.cpp
package leb128

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLEB is returned when the stream ends before a terminator
	// byte (high bit clear) is found.
	ErrMalformedLEB = errors.New("leb128: malformed uleb128 (unterminated)")
	// ErrLEBOverflow is returned when the accumulated value would need more
	// than 64 bits, or a shifted 7-bit group loses bits off the top.
	ErrLEBOverflow = errors.New("leb128: uleb128 overflows 64 bits")
	// ErrLEBTooLong is returned by Encode when value's minimal encoding does
	// not fit in the caller-supplied reserved length.
	ErrLEBTooLong = errors.New("leb128: value does not fit in reserved length")
)

// Decode reads a ULEB128 value from b[cursor:end]. It returns the decoded
// value and the number of bytes consumed (terminator included), so the
// caller can advance its own cursor by exactly that amount.
func Decode(b []byte, cursor, end int) (value uint64, bytesConsumed int, err error) {
	var shift uint
	i := cursor
	for {
		if i >= end {
			return 0, 0, ErrMalformedLEB
		}
		slice := uint64(b[i] & 0x7f)

		if shift >= 64 || (slice<<shift)>>shift != slice {
			return 0, 0, ErrLEBOverflow
		}

		value |= slice << shift
		done := b[i]&0x80 == 0
		i++
		shift += 7

		if done {
			return value, i - cursor, nil
		}
	}
}

// Encode writes value as ULEB128 into dst[0:].
//
// If reservedLen is zero, the minimal encoding is written and its length
// returned. If reservedLen is nonzero, the encoding occupies exactly
// reservedLen bytes: the terminating byte (high bit clear) stays last, and
// any bytes added to pad out to reservedLen are written as 0x80
// (continuation, contributing zero) ahead of it. This lets a rewrite of an
// already-encoded ULEB128 field preserve the field's byte length exactly,
// which the lazy-bind opcode stream requires since no byte may shift.
func Encode(dst []byte, value uint64, reservedLen int) (written int, err error) {
	if reservedLen != 0 {
		need := 1
		for v := value >> 7; v != 0; v >>= 7 {
			need++
		}
		if need > reservedLen {
			return 0, fmt.Errorf("%w: minimal encoding needs %d bytes, have %d", ErrLEBTooLong, need, reservedLen)
		}
	}

	orig := value
	n := 0
	for {
		b := byte(orig & 0x7f)
		orig >>= 7
		if orig != 0 {
			b |= 0x80
		}
		dst[n] = b
		n++
		if orig == 0 {
			break
		}
	}

	if reservedLen == 0 {
		return n, nil
	}

	pad := reservedLen - n
	if pad == 0 {
		return n, nil
	}

	// The minimal encoding's last byte was the terminator (high bit clear,
	// carrying the final 7-bit group). Turn it into a continuation byte —
	// its group value is unchanged, so it contributes the same bits at
	// decode time — then fill the gap with zero-value continuation bytes
	// and place a fresh terminator at the very end. Every inserted byte
	// decodes to a zero-valued 7-bit group, so the total value is unchanged.
	dst[n-1] |= 0x80
	for i := n; i < reservedLen-1; i++ {
		dst[i] = 0x80
	}
	dst[reservedLen-1] = 0x00
	return reservedLen, nil
}

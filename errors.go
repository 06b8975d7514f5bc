package macho

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers should compare with errors.Is; most are
// wrapped in a FormatError that carries the byte offset that triggered them.
var (
	ErrUnsupportedImage        = errors.New("macho: unsupported magic (only MH_MAGIC_64 is handled)")
	ErrTruncatedCommands       = errors.New("macho: load command area runs past sizeofcmds")
	ErrMalformedImage          = errors.New("macho: load command area is inconsistent")
	ErrMissingDyldInfo         = errors.New("macho: no LC_DYLD_INFO_ONLY command present")
	ErrInsufficientHeaderSpace = errors.New("macho: not enough zero-filled header space for new load command")
	ErrHeaderNotZeroPadded     = errors.New("macho: header gap is not zero-filled")
	ErrOrdinalOutOfImmRange    = errors.New("macho: dylib ordinal does not fit an IMM bind opcode")
	ErrUnknownHookDylib        = errors.New("macho: hook references a dylib not present as a load command")
)

// FormatError reports a problem with the shape of the load-command area,
// identified by the byte offset (relative to the start of the file) where it
// was found.
type FormatError struct {
	Off int64
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s in record at byte %#x", e.Err, e.Off)
}

func (e *FormatError) Unwrap() error { return e.Err }

package macho

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// WithMappedFile opens path read-write, memory-maps its full length shared
// read-write, and invokes fn with the mapped bytes. The mapping is flushed
// synchronously and unmapped, and the file descriptor closed, on every exit
// path — including when fn returns an error or panics during unwind.
func WithMappedFile(path string, fn func(data []byte) error) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "opening target")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing target")
		}
	}()

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "mapping target")
	}
	defer func() {
		if uerr := m.Unmap(); err == nil && uerr != nil {
			err = errors.Wrap(uerr, "unmapping target")
		}
	}()

	defer func() {
		if serr := m.Flush(); err == nil && serr != nil {
			err = errors.Wrap(serr, "syncing target to disk")
		}
	}()

	return fn(m)
}

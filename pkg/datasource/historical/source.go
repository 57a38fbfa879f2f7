package historical

import (
	"errors"
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/exp/mmap"

	"github.com/peter-kozarec/tessera/pkg/common"
)

var errEndOfSource = errors.New("end of source")

// Source is a memory mapped archive of fixed size records of type T, which
// must be free of padding and pointers. A Source is read by one goroutine.
type Source[T any] struct {
	path   string
	size   int
	reader *mmap.ReaderAt
	buf    []byte
}

func NewSource[T any](path string) *Source[T] {
	size := int(unsafe.Sizeof(*new(T)))
	return &Source[T]{
		path: path,
		size: size,
		buf:  make([]byte, size),
	}
}

func (s *Source[T]) Open() error {
	if s.size == 0 {
		return fmt.Errorf("record type of %s has zero size", s.path)
	}
	reader, err := mmap.Open(s.path)
	if err != nil {
		return fmt.Errorf("unable to map %s: %w", s.path, err)
	}
	s.reader = reader
	return nil
}

func (s *Source[T]) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// Len is the number of records in the archive. A trailing partial record is
// a data integrity error.
func (s *Source[T]) Len() (int64, error) {
	total := s.reader.Len()
	if total%s.size != 0 {
		return 0, fmt.Errorf("%s holds %d bytes, not a multiple of the %d byte record: %w",
			s.path, total, s.size, common.ErrDataIntegrity)
	}
	return int64(total / s.size), nil
}

// Read decodes the record at index into data.
func (s *Source[T]) Read(index int64, data *T) error {
	if index < 0 {
		return fmt.Errorf("negative record index %d", index)
	}

	n, err := s.reader.ReadAt(s.buf, index*int64(s.size))
	if n < s.size {
		if err == nil || errors.Is(err, io.EOF) {
			return errEndOfSource
		}
		return fmt.Errorf("unable to read record %d: %w", index, err)
	}

	*data = *(*T)(unsafe.Pointer(&s.buf[0])) // #nosec G103
	return nil
}

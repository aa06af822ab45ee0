// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"encoding/binary"
	"errors"
)

// Errors
var (
	// ErrOutOfBounds is returned when a read reaches past the end of the
	// borrowed buffer.
	ErrOutOfBounds = errors.New("reading data outside buffer boundary")

	// ErrBadLength is returned when a length or offset argument is invalid.
	ErrBadLength = errors.New("invalid length or offset")
)

// Reader decodes little-endian primitives from a borrowed byte slice.
// Returned byte slices alias the underlying buffer and are valid for the
// buffer's lifetime.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader over data. The Reader borrows data and never
// copies it.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current cursor position.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// ReachedEOF reports whether the cursor sits at the end of the buffer.
func (r *Reader) ReachedEOF() bool {
	return r.pos == len(r.data)
}

// Seek moves the cursor to the absolute position pos.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return ErrOutOfBounds
	}
	r.pos = pos
	return nil
}

// Skip advances the cursor n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrBadLength
	}
	if r.pos+n > len(r.data) {
		return ErrOutOfBounds
	}
	r.pos += n
	return nil
}

// ReadBytes returns the next n bytes as a sub-slice of the buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrBadLength
	}
	if r.pos+n > len(r.data) {
		return nil, ErrOutOfBounds
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, ErrOutOfBounds
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, ErrOutOfBounds
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrOutOfBounds
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrOutOfBounds
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// CString reads a zero-terminated string starting at the cursor and leaves
// the cursor one past the terminator.
func (r *Reader) CString() (string, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", ErrOutOfBounds
}

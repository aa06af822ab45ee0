// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"encoding/binary"
	"os"
)

// Writer encodes little-endian primitives into a growable buffer. Write
// operations never fail; the buffer grows as needed. Length-prefixed blocks
// are produced with the size-patch stack: PushSize reserves a 4-byte slot,
// PopSize patches it with the number of bytes written in between. Pushes
// nest LIFO.
type Writer struct {
	buf       []byte
	sizeStack []int
}

// NewWriter returns a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes. The slice is owned by the Writer until
// the caller is done writing.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteBytes appends b.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteUint8 appends one byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteInt64 appends a little-endian int64.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteCString appends s followed by a zero terminator.
func (w *Writer) WriteCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Pad appends n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Align pads with zero bytes until the length is a multiple of n.
func (w *Writer) Align(n int) {
	if rem := len(w.buf) % n; rem != 0 {
		w.Pad(n - rem)
	}
}

// EditBytes overwrites len(b) bytes at position at. The position must come
// from a prior Len call; writing past the end is a programming error and
// panics.
func (w *Writer) EditBytes(at int, b []byte) {
	copy(w.buf[at:at+len(b)], b)
}

// PushSize reserves a 4-byte length slot at the cursor.
func (w *Writer) PushSize() {
	w.sizeStack = append(w.sizeStack, len(w.buf))
	w.WriteUint32(0)
}

// PopSize patches the most recent slot with the byte count written since
// the matching PushSize.
func (w *Writer) PopSize() {
	at := w.sizeStack[len(w.sizeStack)-1]
	w.sizeStack = w.sizeStack[:len(w.sizeStack)-1]
	var patch [4]byte
	binary.LittleEndian.PutUint32(patch[:], uint32(len(w.buf)-at-4))
	w.EditBytes(at, patch[:])
}

// SaveTo writes the buffer to path.
func (w *Writer) SaveTo(path string) error {
	return os.WriteFile(path, w.buf, 0666)
}

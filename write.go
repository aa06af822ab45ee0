// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"errors"
	"os"
	"sort"
)

// ErrLayout is returned when a region lands at a different offset than the
// header declares.
var ErrLayout = errors.New("archive layout disagrees with header offsets")

// Encode serializes the archive to its on-disk form. payloads supplies one
// data block per entry; a nil payloads reuses the data region of the buffer
// the archive was parsed from. Regions are written in the fixed order
// header, entries, string chunk, dependencies, dependency index, string
// index, trailing magic, then the 8-byte aligned data blocks.
func (f *File) Encode(payloads [][]byte) ([]byte, error) {
	h := &f.Header

	if payloads == nil {
		payloads = make([][]byte, len(f.Entries))
		for i := range f.Entries {
			e := &f.Entries[i]
			if e.DataOffset+e.DataSize > uint64(len(f.buffer)) {
				return nil, ErrDataNotRead
			}
			payloads[i] = f.buffer[e.DataOffset : e.DataOffset+e.DataSize]
		}
	}
	if len(payloads) != len(f.Entries) {
		return nil, ErrBadLength
	}

	w := NewWriter(int(h.DataOffset) + 256)

	w.WriteBytes(h.Magic[:])
	w.WriteUint32(h.Version)
	w.WriteUint32(h.Flags)
	w.WriteUint32(h.NumSegments)
	w.WriteUint64(h.SegmentSize)
	w.WriteUint64(h.MetadataHash)
	w.WriteUint32(h.NumResources)
	w.WriteUint32(h.NumDependencies)
	w.WriteUint32(h.NumDepIndices)
	w.WriteUint32(h.NumStringIndices)
	w.WriteUint32(h.NumSpecialHashes)
	w.WriteUint32(h.NumMetaEntries)
	w.WriteUint32(h.StringTableSize)
	w.WriteUint32(h.MetaEntriesSize)
	w.WriteUint64(h.StringTableOffset)
	w.WriteUint64(h.MetaEntriesOffset)
	w.WriteUint64(h.ResourceEntriesOffset)
	w.WriteUint64(h.ResourceDepsOffset)
	w.WriteUint64(h.ResourceSpecialHashOffset)
	w.WriteUint64(h.DataOffset)
	w.Pad(headerReservedSize)

	if h.Version < 13 {
		w.WriteUint32(f.MetaHeader.Unknown)
		w.WriteUint64(f.MetaHeader.MetaOffset)
	}

	if uint64(w.Len()) != h.ResourceEntriesOffset {
		return nil, ErrLayout
	}
	for i := range f.Entries {
		writeResourceEntry(w, &f.Entries[i])
	}

	if uint64(w.Len()) != h.StringTableOffset {
		return nil, ErrLayout
	}
	writeStringChunk(w, &f.Strings)
	chunkEnd := h.StringTableOffset + uint64(h.StringTableSize)
	if uint64(w.Len()) > chunkEnd {
		return nil, ErrLayout
	}
	w.Pad(int(chunkEnd) - w.Len())

	if uint64(w.Len()) != h.ResourceDepsOffset {
		return nil, ErrLayout
	}
	for i := range f.Dependencies {
		d := &f.Dependencies[i]
		w.WriteUint64(d.Type)
		w.WriteUint64(d.Name)
		w.WriteUint32(d.DepType)
		w.WriteUint32(d.DepSubType)
		w.WriteUint32(d.FirstInt)
		w.WriteUint32(d.SecondInt)
	}
	for _, v := range f.DependencyIndex {
		w.WriteUint32(v)
	}
	for _, v := range f.StringIndex {
		w.WriteUint64(v)
	}

	// Trailing magic, then 0 or 4 pad bytes so the data region starts
	// 8-byte aligned.
	if uint64(w.Len()) != h.ExpectedMetaOffset() {
		return nil, ErrLayout
	}
	w.WriteBytes([]byte(ResourceMagic))
	w.Align(8)
	if uint64(w.Len()) != h.DataOffset {
		return nil, ErrLayout
	}

	order := make([]int, len(f.Entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return f.Entries[order[a]].DataOffset < f.Entries[order[b]].DataOffset
	})
	for _, i := range order {
		e := &f.Entries[i]
		if uint64(w.Len()) > e.DataOffset || uint64(len(payloads[i])) != e.DataSize {
			return nil, ErrLayout
		}
		w.Pad(int(e.DataOffset) - w.Len())
		w.WriteBytes(payloads[i])
	}

	return w.Bytes(), nil
}

func writeResourceEntry(w *Writer, e *ResourceEntry) {
	w.WriteInt64(e.ResourceTypeString)
	w.WriteInt64(e.NameString)
	w.WriteInt64(e.DescString)
	w.WriteUint64(e.DepIndices)
	w.WriteUint64(e.Strings)
	w.WriteUint64(e.SpecialHashes)
	w.WriteUint64(e.MetaEntries)
	w.WriteUint64(e.DataOffset)
	w.WriteUint64(e.DataSize)
	w.WriteUint64(e.UncompressedSize)
	w.WriteUint64(e.DataCheckSum)
	w.WriteUint64(e.GenerationTimeStamp)
	w.WriteUint64(e.DefaultHash)
	w.WriteUint32(e.Version)
	w.WriteUint32(e.Flags)
	w.WriteUint8(e.CompMode)
	w.WriteUint8(e.Reserved0)
	w.WriteUint16(e.Variation)
	w.WriteUint32(e.Reserved2)
	w.WriteUint64(e.ReservedForVariations)
	w.WriteUint16(e.NumStrings)
	w.WriteUint16(e.NumSources)
	w.WriteUint16(e.NumDependencies)
	w.WriteUint16(e.NumSpecialHashes)
	w.WriteUint16(e.NumMetaEntries)
	w.Pad(6)
}

func writeStringChunk(w *Writer, sc *StringChunk) {
	w.WriteUint64(uint64(len(sc.Strings)))
	offset := uint64(0)
	for _, s := range sc.Strings {
		w.WriteUint64(offset)
		offset += uint64(len(s)) + 1
	}
	for _, s := range sc.Strings {
		w.WriteCString(s)
	}
}

// Save encodes the archive and writes it to path.
func (f *File) Save(path string, payloads [][]byte) error {
	data, err := f.Encode(payloads)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0666)
}

// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"io"
)

// EntryDataCode classifies the outcome of an entry data request.
type EntryDataCode int

// Entry data result codes.
const (
	EntryDataUnused EntryDataCode = iota
	EntryDataOK
	EntryDataNotRead
	EntryDataUnknownCompression
	EntryDataDecompressorError
)

// String implements fmt.Stringer.
func (c EntryDataCode) String() string {
	switch c {
	case EntryDataOK:
		return "OK"
	case EntryDataNotRead:
		return "DataNotRead"
	case EntryDataUnknownCompression:
		return "UnknownCompression"
	case EntryDataDecompressorError:
		return "DecompressorError"
	}
	return "Unused"
}

// EntryData is the result of reading one entry's payload. For raw and
// unknown-compression entries Buffer aliases the archive buffer; for
// compressed entries it is freshly allocated.
type EntryData struct {
	Code   EntryDataCode
	Buffer []byte
}

// EntryData returns an entry's payload, decompressing it when needed. The
// archive must have been parsed with its data section available
// (ReadEverything). Unknown compression modes surface the raw bytes
// together with EntryDataUnknownCompression.
func (f *File) EntryData(e *ResourceEntry) EntryData {
	if f.opts.Flags&(SkipData|HeaderOnly|StopAfterEntries) != 0 {
		return EntryData{Code: EntryDataNotRead}
	}
	if e.DataOffset+e.DataSize > uint64(len(f.buffer)) {
		return EntryData{Code: EntryDataNotRead}
	}
	raw := f.buffer[e.DataOffset : e.DataOffset+e.DataSize]
	return f.resolveEntryData(e, raw)
}

// EntryDataAt reads an entry's payload from ra without requiring the data
// section in memory. Use this when the archive was parsed with SkipData and
// entries are streamed one at a time.
func (f *File) EntryDataAt(e *ResourceEntry, ra io.ReaderAt) EntryData {
	raw := make([]byte, e.DataSize)
	if _, err := ra.ReadAt(raw, int64(e.DataOffset)); err != nil {
		return EntryData{Code: EntryDataNotRead}
	}
	return f.resolveEntryData(e, raw)
}

func (f *File) resolveEntryData(e *ResourceEntry, raw []byte) EntryData {
	switch e.CompMode {
	case CompModeNone:
		return EntryData{Code: EntryDataOK, Buffer: raw}
	case CompModeOodle:
		if f.opts.Decompressor == nil {
			return EntryData{Code: EntryDataDecompressorError, Buffer: raw}
		}
		out, err := f.opts.Decompressor.Decompress(raw, int64(e.UncompressedSize))
		if err != nil {
			return EntryData{Code: EntryDataDecompressorError, Buffer: raw}
		}
		return EntryData{Code: EntryDataOK, Buffer: out}
	default:
		return EntryData{Code: EntryDataUnknownCompression, Buffer: raw}
	}
}

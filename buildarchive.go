// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

// defaultSegmentSize is the segment size every known archive declares.
const defaultSegmentSize = 1099511627775

// BuildArchive synthesizes a resource archive holding the given mod files
// and returns it together with the per-entry payloads to pass to Encode.
// Entries are uncompressed, declare no dependencies, and hash their
// payloads with the resource murmur.
func BuildArchive(modFiles []*ModFile) (*File, [][]byte, error) {
	f := &File{}
	h := &f.Header

	copy(h.Magic[:], ResourceMagic)
	h.Version = ArchiveVersion
	h.Flags = 0
	h.NumSegments = 1
	h.SegmentSize = defaultSegmentSize
	h.MetadataHash = 0
	h.NumSpecialHashes = 0
	h.NumMetaEntries = 0
	h.MetaEntriesSize = 0
	h.ResourceEntriesOffset = ResourceHeaderSize
	h.NumResources = uint32(len(modFiles))

	// String chunk: the reserved preamble, then one name per entry. An
	// empty archive writes an empty chunk.
	h.StringTableOffset = h.ResourceEntriesOffset + uint64(h.NumResources)*ResourceEntrySize
	if len(modFiles) > 0 {
		f.Strings.Strings = make([]string, 0, len(StringTablePreamble)+len(modFiles))
		f.Strings.Strings = append(f.Strings.Strings, StringTablePreamble[:]...)
		for _, mf := range modFiles {
			f.Strings.Strings = append(f.Strings.Strings, mf.AssetPath)
		}
	}
	chunkSize := uint64(8) + uint64(len(f.Strings.Strings))*8
	for _, s := range f.Strings.Strings {
		chunkSize += uint64(len(s)) + 1
	}
	f.Strings.PaddingCount = 8 - chunkSize%8
	h.StringTableSize = uint32(chunkSize + f.Strings.PaddingCount)

	// String indices: per entry, the type's preamble slot and the name
	// slot.
	h.NumStringIndices = uint32(len(modFiles) * 2)
	f.StringIndex = make([]uint64, 0, h.NumStringIndices)
	for i, mf := range modFiles {
		f.StringIndex = append(f.StringIndex,
			uint64(preambleIndex(mf.AssetType)),
			uint64(i+len(StringTablePreamble)))
	}

	// No dependencies for the supported asset classes.
	h.ResourceDepsOffset = h.StringTableOffset + uint64(h.StringTableSize)
	h.NumDependencies = 0
	h.NumDepIndices = 0
	h.MetaEntriesOffset = h.ResourceDepsOffset
	h.ResourceSpecialHashOffset = h.ResourceDepsOffset

	// Trailing magic plus 0 or 4 pad bytes keeps the data region 8-byte
	// aligned.
	idclOffset := h.ExpectedMetaOffset()
	idclSize := uint64(4)
	if idclOffset%8 == 0 {
		idclSize += 4
	}
	h.DataOffset = idclOffset + idclSize

	f.Entries = make([]ResourceEntry, len(modFiles))
	payloads := make([][]byte, len(modFiles))
	runningOffset := h.DataOffset
	for i, mf := range modFiles {
		e := &f.Entries[i]
		payloads[i] = mf.Data

		e.ResourceTypeString = 0
		e.NameString = 1
		e.DescString = -1
		e.Strings = uint64(i) * 2
		e.SpecialHashes = 0
		e.MetaEntries = 0
		e.NumStrings = 2
		e.NumSources = 0
		e.NumSpecialHashes = 0
		e.NumMetaEntries = 0
		e.GenerationTimeStamp = 0

		e.DepIndices = 0
		e.NumDependencies = 0
		e.Version = mf.ResourceVersion
		e.Flags = 0
		e.CompMode = CompModeNone
		e.Variation = 0
		e.DataSize = uint64(len(mf.Data))
		e.UncompressedSize = e.DataSize
		e.DataCheckSum = ResourceMurmurHash(mf.Data)
		e.DefaultHash = e.DataCheckSum

		e.DataOffset = runningOffset
		runningOffset += e.DataSize
		if rem := runningOffset % 8; rem != 0 {
			runningOffset += 8 - rem
		}
	}

	if err := f.Audit(); err != nil {
		return nil, nil, err
	}
	return f, payloads, nil
}

// BuildArchiveFile synthesizes the archive and writes it to outPath.
func BuildArchiveFile(modFiles []*ModFile, outPath string) error {
	f, payloads, err := BuildArchive(modFiles)
	if err != nil {
		return err
	}
	return f.Save(outPath, payloads)
}

// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package resources implements the game's resource-archive format: the
// IDCL archive reader and writer, the container-mask bitmap protocol, the
// package-map manifest, and the extraction and injection flows built on
// them.
package resources

// ResourceMagic identifies a resource archive. It appears at offset 0 and
// again at the end of the meta section, just before the data region.
const ResourceMagic = "IDCL"

// ArchiveVersion is the archive version the writer emits.
const ArchiveVersion = 13

// On-disk sizes of the fixed-layout structures.
const (
	ResourceHeaderSize     = 128
	ResourceMetaHeaderSize = 12
	ResourceEntrySize      = 144
	ResourceDependencySize = 32
)

// headerReservedSize pads the named header fields out to
// ResourceHeaderSize. The engine leaves these bytes zero.
const headerReservedSize = 16

// StringTablePreamble holds the reserved strings at the start of every
// synthesized archive's string chunk. Entries reference their type string
// by index into this preamble.
var StringTablePreamble = [2]string{"rs_streamfile", "entityDef"}

// ResourceHeader is the fixed 128-byte archive header.
type ResourceHeader struct {
	// Magic number, "IDCL".
	Magic [4]byte `json:"magic"`

	// Format version. Versions below 13 carry a meta header after this one.
	Version uint32 `json:"version"`

	// Archive flags.
	Flags uint32 `json:"flags"`

	// Number of data segments.
	NumSegments uint32 `json:"num_segments"`

	// Size of a data segment.
	SegmentSize uint64 `json:"segment_size"`

	// Hash over the metadata region.
	MetadataHash uint64 `json:"metadata_hash"`

	// Number of resource entries.
	NumResources uint32 `json:"num_resources"`

	// Number of resource dependencies.
	NumDependencies uint32 `json:"num_dependencies"`

	// Number of dependency-index elements.
	NumDepIndices uint32 `json:"num_dep_indices"`

	// Number of string-index elements. Two per entry.
	NumStringIndices uint32 `json:"num_string_indices"`

	// Number of special hashes.
	NumSpecialHashes uint32 `json:"num_special_hashes"`

	// Number of meta entries.
	NumMetaEntries uint32 `json:"num_meta_entries"`

	// Byte size of the string chunk, padding included.
	StringTableSize uint32 `json:"string_table_size"`

	// Byte size of the meta-entries region.
	MetaEntriesSize uint32 `json:"meta_entries_size"`

	// Absolute offset of the string chunk.
	StringTableOffset uint64 `json:"string_table_offset"`

	// Absolute offset of the meta-entries region.
	MetaEntriesOffset uint64 `json:"meta_entries_offset"`

	// Absolute offset of the resource-entries table.
	ResourceEntriesOffset uint64 `json:"resource_entries_offset"`

	// Absolute offset of the dependencies table.
	ResourceDepsOffset uint64 `json:"resource_deps_offset"`

	// Absolute offset of the special-hashes table.
	ResourceSpecialHashOffset uint64 `json:"resource_special_hash_offset"`

	// Absolute offset of the data region. Always 8-byte aligned.
	DataOffset uint64 `json:"data_offset"`
}

// ResourceMetaHeader follows the header in archives older than version 13.
// The structure is tightly packed on disk.
type ResourceMetaHeader struct {
	// Always 0.
	Unknown uint32 `json:"unknown"`

	// Absolute offset of the 'I' in the trailing "IDCL" magic.
	MetaOffset uint64 `json:"meta_offset"`
}

// ResourceEntry is one asset's metadata. The string-valued fields are
// indices into the entry's slice of the string-index table.
type ResourceEntry struct {
	// Index of the type string within the entry's string slots. Always 0.
	ResourceTypeString int64 `json:"resource_type_string"`

	// Index of the name string within the entry's string slots. Always 1.
	NameString int64 `json:"name_string"`

	// Index of the unused description string. Always -1.
	DescString int64 `json:"desc_string"`

	// Offset into the dependency-index table.
	DepIndices uint64 `json:"dep_indices"`

	// Offset into the string-index table. Always entry index * 2.
	Strings uint64 `json:"strings"`

	// Offset into the special-hashes table. Always 0.
	SpecialHashes uint64 `json:"special_hashes"`

	// Offset into the meta-entries region. Always 0.
	MetaEntries uint64 `json:"meta_entries"`

	// Absolute offset of the entry's data block. 8-byte aligned.
	DataOffset uint64 `json:"data_offset"`

	// Byte size of the data block on disk.
	DataSize uint64 `json:"data_size"`

	// Byte size after decompression. Equals DataSize when CompMode is 0.
	UncompressedSize uint64 `json:"uncompressed_size"`

	// Murmur hash of the stored bytes.
	DataCheckSum uint64 `json:"data_checksum"`

	// Build timestamp. The injector stores a sentinel here to mark the
	// container-mask archive as modded.
	GenerationTimeStamp uint64 `json:"generation_timestamp"`

	// Equals DataCheckSum.
	DefaultHash uint64 `json:"default_hash"`

	// Per-entry format version.
	Version uint32 `json:"version"`

	// Per-entry flags.
	Flags uint32 `json:"flags"`

	// Compression mode: 0 raw, 2 compressed.
	CompMode uint8 `json:"comp_mode"`

	// Always 0.
	Reserved0 uint8 `json:"reserved_0"`

	// Asset variation.
	Variation uint16 `json:"variation"`

	// Always 0.
	Reserved2 uint32 `json:"reserved_2"`

	// Always 0.
	ReservedForVariations uint64 `json:"reserved_for_variations"`

	// Number of string slots. Always 2.
	NumStrings uint16 `json:"num_strings"`

	// Always 0.
	NumSources uint16 `json:"num_sources"`

	// Number of dependencies.
	NumDependencies uint16 `json:"num_dependencies"`

	// Always 0.
	NumSpecialHashes uint16 `json:"num_special_hashes"`

	// Always 0.
	NumMetaEntries uint16 `json:"num_meta_entries"`
}

// Compression modes.
const (
	CompModeNone  = 0
	CompModeOodle = 2
)

// StringChunk is the archive's internal string table. Entries reference its
// slots through the string-index table.
type StringChunk struct {
	// The decoded strings, in slot order.
	Strings []string `json:"strings"`

	// Zero bytes after the blob that round the chunk up to 8 bytes.
	PaddingCount uint64 `json:"padding_count"`
}

// Size returns the serialized byte size of the chunk, padding included.
func (sc *StringChunk) Size() uint64 {
	size := uint64(8) + uint64(len(sc.Strings))*8
	for _, s := range sc.Strings {
		size += uint64(len(s)) + 1
	}
	return size + sc.PaddingCount
}

// ResourceDependency links an entry to an asset it requires at load time.
type ResourceDependency struct {
	// String-chunk index of the dependency's type.
	Type uint64 `json:"type"`

	// String-chunk index of the dependency's name.
	Name uint64 `json:"name"`

	DepType    uint32 `json:"dep_type"`
	DepSubType uint32 `json:"dep_sub_type"`
	FirstInt   uint32 `json:"first_int"`
	SecondInt  uint32 `json:"second_int"`
}

// ExpectedMetaOffset returns the offset where the trailing "IDCL" magic
// should sit, derived from the header's counts.
func (h *ResourceHeader) ExpectedMetaOffset() uint64 {
	return h.ResourceDepsOffset +
		uint64(h.NumDependencies)*ResourceDependencySize +
		uint64(h.NumDepIndices)*4 +
		uint64(h.NumStringIndices)*8
}

// GapSize returns the byte count between the trailing "IDCL" magic and the
// start of the data region.
func (h *ResourceHeader) GapSize() uint64 {
	return h.DataOffset - h.ExpectedMetaOffset()
}

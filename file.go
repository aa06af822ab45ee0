// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"bytes"
	"errors"
	"os"

	"github.com/atlanmod/resources/log"
	mmap "github.com/edsrzf/mmap-go"
)

// Errors
var (
	// ErrBadMagic is returned when the "IDCL" magic is missing.
	ErrBadMagic = errors.New("not a resource archive, IDCL magic not found")

	// ErrBadTrailingMagic is returned when the second "IDCL" magic at the
	// end of the meta section is missing.
	ErrBadTrailingMagic = errors.New("corrupt archive, trailing IDCL magic not found")

	// ErrUnsupportedVersion is returned when the archive version is not one
	// of the supported values.
	ErrUnsupportedVersion = errors.New("unsupported archive version")

	// ErrHeaderAudit is returned when the header's derived offsets disagree
	// with its counts.
	ErrHeaderAudit = errors.New("corrupt archive, header audit failed")

	// ErrEntryAudit is returned when a resource entry violates a universal
	// field invariant.
	ErrEntryAudit = errors.New("corrupt archive, entry audit failed")

	// ErrStringIndex is returned when an entry references a string slot
	// outside the string chunk.
	ErrStringIndex = errors.New("corrupt archive, string index out of range")

	// ErrDataNotRead is returned when entry data is requested from an
	// archive parsed with SkipData and no stream is available.
	ErrDataNotRead = errors.New("archive data section was not read")
)

// LoadFlag selects how much of an archive Parse reads.
type LoadFlag uint32

// Load flags.
const (
	ReadEverything   LoadFlag = 0
	SkipData         LoadFlag = 1 << 0
	HeaderOnly       LoadFlag = 1 << 1
	StopAfterEntries LoadFlag = 1 << 2
)

// Options configures archive parsing.
type Options struct {

	// How much of the archive to read, by default everything.
	Flags LoadFlag

	// Decompressor for compressed entry payloads.
	Decompressor Decompressor

	// A custom logger.
	Logger log.Logger
}

// A File represents an open resource archive.
type File struct {
	Header          ResourceHeader       `json:"header"`
	MetaHeader      ResourceMetaHeader   `json:"meta_header,omitempty"`
	Entries         []ResourceEntry      `json:"entries,omitempty"`
	Strings         StringChunk          `json:"strings,omitempty"`
	Dependencies    []ResourceDependency `json:"dependencies,omitempty"`
	DependencyIndex []uint32             `json:"dependency_index,omitempty"`
	StringIndex     []uint64             `json:"string_index,omitempty"`

	Path string `json:"path,omitempty"`

	data   mmap.MMap
	buffer []byte
	f      *os.File
	opts   *Options
	logger *log.Helper
}

// New instantiates a File given an archive path. The file is memory mapped;
// Close unmaps it.
func New(name string, opts *Options) (*File, error) {

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := newFile(opts)
	file.Path = name
	file.data = data
	file.buffer = data
	file.f = f
	return file, nil
}

// NewBytes instantiates a File over an in-memory archive image.
func NewBytes(data []byte, opts *Options) (*File, error) {
	file := newFile(opts)
	file.buffer = data
	return file, nil
}

func newFile(opts *Options) *File {
	file := &File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}

	file.logger = newLogHelper(file.opts.Logger)
	return file
}

// newLogHelper wraps logger, falling back to an error-only stdout logger.
func newLogHelper(logger log.Logger) *log.Helper {
	if logger == nil {
		logger = log.NewFilter(log.NewStdLogger(os.Stdout),
			log.FilterLevel(log.LevelError))
	}
	return log.NewHelper(logger)
}

// Close closes the File.
func (f *File) Close() error {
	if f.data != nil {
		_ = f.data.Unmap()
		f.data = nil
	}
	if f.f != nil {
		err := f.f.Close()
		f.f = nil
		return err
	}
	return nil
}

// Parse reads the archive regions selected by the load flags and audits
// them.
func (f *File) Parse() error {
	if err := f.parseHeader(); err != nil {
		return err
	}
	if f.opts.Flags&HeaderOnly != 0 {
		return nil
	}

	if err := f.parseEntries(); err != nil {
		return err
	}
	if f.opts.Flags&StopAfterEntries != 0 {
		return nil
	}

	if err := f.parseStringChunk(); err != nil {
		return err
	}
	if err := f.parseDependencies(); err != nil {
		return err
	}
	if err := f.verifyTrailingMagic(); err != nil {
		return err
	}
	return f.Audit()
}

func (f *File) parseHeader() error {
	r := NewReader(f.buffer)

	magic, err := r.ReadBytes(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(magic, []byte(ResourceMagic)) {
		return ErrBadMagic
	}
	copy(f.Header.Magic[:], magic)

	h := &f.Header
	for _, p := range []*uint32{&h.Version, &h.Flags, &h.NumSegments} {
		if *p, err = r.Uint32(); err != nil {
			return err
		}
	}
	if h.SegmentSize, err = r.Uint64(); err != nil {
		return err
	}
	if h.MetadataHash, err = r.Uint64(); err != nil {
		return err
	}
	counts := []*uint32{
		&h.NumResources, &h.NumDependencies, &h.NumDepIndices,
		&h.NumStringIndices, &h.NumSpecialHashes, &h.NumMetaEntries,
		&h.StringTableSize, &h.MetaEntriesSize,
	}
	for _, p := range counts {
		if *p, err = r.Uint32(); err != nil {
			return err
		}
	}
	offsets := []*uint64{
		&h.StringTableOffset, &h.MetaEntriesOffset, &h.ResourceEntriesOffset,
		&h.ResourceDepsOffset, &h.ResourceSpecialHashOffset, &h.DataOffset,
	}
	for _, p := range offsets {
		if *p, err = r.Uint64(); err != nil {
			return err
		}
	}
	if err = r.Skip(headerReservedSize); err != nil {
		return err
	}

	if h.Version != ArchiveVersion && h.Version != ArchiveVersion-1 {
		return ErrUnsupportedVersion
	}

	// Archives older than version 13 carry a small packed meta header
	// directly after the main one.
	if h.Version < 13 {
		if f.MetaHeader.Unknown, err = r.Uint32(); err != nil {
			return err
		}
		if f.MetaHeader.MetaOffset, err = r.Uint64(); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) parseEntries() error {
	r := NewReader(f.buffer)
	if err := r.Seek(int(f.Header.ResourceEntriesOffset)); err != nil {
		return err
	}

	f.Entries = make([]ResourceEntry, f.Header.NumResources)
	for i := range f.Entries {
		if err := parseResourceEntry(r, &f.Entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func parseResourceEntry(r *Reader, e *ResourceEntry) error {
	var err error
	if e.ResourceTypeString, err = r.Int64(); err != nil {
		return err
	}
	if e.NameString, err = r.Int64(); err != nil {
		return err
	}
	if e.DescString, err = r.Int64(); err != nil {
		return err
	}
	fields64 := []*uint64{
		&e.DepIndices, &e.Strings, &e.SpecialHashes, &e.MetaEntries,
		&e.DataOffset, &e.DataSize, &e.UncompressedSize, &e.DataCheckSum,
		&e.GenerationTimeStamp, &e.DefaultHash,
	}
	for _, p := range fields64 {
		if *p, err = r.Uint64(); err != nil {
			return err
		}
	}
	if e.Version, err = r.Uint32(); err != nil {
		return err
	}
	if e.Flags, err = r.Uint32(); err != nil {
		return err
	}
	if e.CompMode, err = r.Uint8(); err != nil {
		return err
	}
	if e.Reserved0, err = r.Uint8(); err != nil {
		return err
	}
	if e.Variation, err = r.Uint16(); err != nil {
		return err
	}
	if e.Reserved2, err = r.Uint32(); err != nil {
		return err
	}
	if e.ReservedForVariations, err = r.Uint64(); err != nil {
		return err
	}
	counts := []*uint16{
		&e.NumStrings, &e.NumSources, &e.NumDependencies,
		&e.NumSpecialHashes, &e.NumMetaEntries,
	}
	for _, p := range counts {
		if *p, err = r.Uint16(); err != nil {
			return err
		}
	}
	return r.Skip(6)
}

func (f *File) parseStringChunk() error {
	r := NewReader(f.buffer)
	if err := r.Seek(int(f.Header.StringTableOffset)); err != nil {
		return err
	}

	numStrings, err := r.Uint64()
	if err != nil {
		return err
	}
	offsets := make([]uint64, numStrings)
	for i := range offsets {
		if offsets[i], err = r.Uint64(); err != nil {
			return err
		}
	}

	// Offsets are relative to the first byte after the offset list.
	blobStart := r.Position()
	end := blobStart
	f.Strings.Strings = make([]string, numStrings)
	for i, off := range offsets {
		if err = r.Seek(blobStart + int(off)); err != nil {
			return err
		}
		if f.Strings.Strings[i], err = r.CString(); err != nil {
			return err
		}
		if r.Position() > end {
			end = r.Position()
		}
	}

	chunkEnd := f.Header.StringTableOffset + uint64(f.Header.StringTableSize)
	if chunkEnd < uint64(end) {
		return ErrHeaderAudit
	}
	// The writer always pads, so a fully aligned chunk carries 8 pad bytes.
	f.Strings.PaddingCount = chunkEnd - uint64(end)
	if f.Strings.PaddingCount > 8 {
		return ErrHeaderAudit
	}
	return nil
}

func (f *File) parseDependencies() error {
	r := NewReader(f.buffer)
	if err := r.Seek(int(f.Header.ResourceDepsOffset)); err != nil {
		return err
	}

	var err error
	f.Dependencies = make([]ResourceDependency, f.Header.NumDependencies)
	for i := range f.Dependencies {
		d := &f.Dependencies[i]
		if d.Type, err = r.Uint64(); err != nil {
			return err
		}
		if d.Name, err = r.Uint64(); err != nil {
			return err
		}
		for _, p := range []*uint32{&d.DepType, &d.DepSubType, &d.FirstInt, &d.SecondInt} {
			if *p, err = r.Uint32(); err != nil {
				return err
			}
		}
	}

	f.DependencyIndex = make([]uint32, f.Header.NumDepIndices)
	for i := range f.DependencyIndex {
		if f.DependencyIndex[i], err = r.Uint32(); err != nil {
			return err
		}
	}

	f.StringIndex = make([]uint64, f.Header.NumStringIndices)
	for i := range f.StringIndex {
		if f.StringIndex[i], err = r.Uint64(); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) verifyTrailingMagic() error {
	off := f.Header.ExpectedMetaOffset()
	if off+4 > uint64(len(f.buffer)) {
		return ErrBadTrailingMagic
	}
	if !bytes.Equal(f.buffer[off:off+4], []byte(ResourceMagic)) {
		return ErrBadTrailingMagic
	}
	if f.Header.Version < 13 && f.MetaHeader.MetaOffset != off {
		return ErrHeaderAudit
	}
	return nil
}

// Audit checks the structural invariants every well-formed archive
// satisfies.
func (f *File) Audit() error {
	h := &f.Header

	want := h.ResourceEntriesOffset + uint64(h.NumResources)*ResourceEntrySize
	if h.StringTableOffset != want {
		return ErrHeaderAudit
	}
	if h.DataOffset%8 != 0 {
		return ErrHeaderAudit
	}

	// The gap holds the trailing magic plus 0 or 4 pad bytes.
	if gap := h.GapSize(); gap != 4 && gap != 8 {
		return ErrHeaderAudit
	}

	for i := range f.Entries {
		e := &f.Entries[i]
		if e.Strings != uint64(i)*2 {
			return ErrEntryAudit
		}
		if e.NumStrings != 2 {
			return ErrEntryAudit
		}
		if _, _, err := f.EntryStrings(e); err != nil {
			return err
		}
	}
	return nil
}

// EntryStrings resolves an entry's type and name strings through the
// string-index table.
func (f *File) EntryStrings(e *ResourceEntry) (typ, name string, err error) {
	ti := e.Strings + uint64(e.ResourceTypeString)
	ni := e.Strings + uint64(e.NameString)
	if ti >= uint64(len(f.StringIndex)) || ni >= uint64(len(f.StringIndex)) {
		return "", "", ErrStringIndex
	}
	tslot, nslot := f.StringIndex[ti], f.StringIndex[ni]
	if tslot >= uint64(len(f.Strings.Strings)) || nslot >= uint64(len(f.Strings.Strings)) {
		return "", "", ErrStringIndex
	}
	return f.Strings.Strings[tslot], f.Strings.Strings[nslot], nil
}

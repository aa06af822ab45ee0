// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"fmt"
	"sort"
	"strings"
)

// String renders a plaintext manifest of the archive: the header, the
// string chunk, and every entry with its resolved type and name. Used by
// the extractor's manifest mode for diffing archives between game
// versions.
func (f *File) String() string {
	var b strings.Builder

	h := &f.Header
	b.WriteString("header = {\n")
	fmt.Fprintf(&b, "magic = %q;\n", string(h.Magic[:]))
	fmt.Fprintf(&b, "version = %d;\n", h.Version)
	fmt.Fprintf(&b, "flags = %d;\n", h.Flags)
	fmt.Fprintf(&b, "numSegments = %d;\n", h.NumSegments)
	fmt.Fprintf(&b, "segmentSize = %d;\n", h.SegmentSize)
	fmt.Fprintf(&b, "metadataHash = %d;\n", h.MetadataHash)
	fmt.Fprintf(&b, "numResources = %d;\n", h.NumResources)
	fmt.Fprintf(&b, "numDependencies = %d;\n", h.NumDependencies)
	fmt.Fprintf(&b, "numDepIndices = %d;\n", h.NumDepIndices)
	fmt.Fprintf(&b, "numStringIndices = %d;\n", h.NumStringIndices)
	fmt.Fprintf(&b, "numSpecialHashes = %d;\n", h.NumSpecialHashes)
	fmt.Fprintf(&b, "numMetaEntries = %d;\n", h.NumMetaEntries)
	fmt.Fprintf(&b, "stringTableSize = %d;\n", h.StringTableSize)
	fmt.Fprintf(&b, "metaEntriesSize = %d;\n", h.MetaEntriesSize)
	fmt.Fprintf(&b, "stringTableOffset = %d;\n", h.StringTableOffset)
	fmt.Fprintf(&b, "metaEntriesOffset = %d;\n", h.MetaEntriesOffset)
	fmt.Fprintf(&b, "resourceEntriesOffset = %d;\n", h.ResourceEntriesOffset)
	fmt.Fprintf(&b, "resourceDepsOffset = %d;\n", h.ResourceDepsOffset)
	fmt.Fprintf(&b, "resourceSpecialHashOffset = %d;\n", h.ResourceSpecialHashOffset)
	fmt.Fprintf(&b, "dataOffset = %d;\n", h.DataOffset)
	if h.Version < 13 {
		fmt.Fprintf(&b, "metaHeaderUnknown = %d;\n", f.MetaHeader.Unknown)
		fmt.Fprintf(&b, "metaHeaderOffset = %d;\n", f.MetaHeader.MetaOffset)
	}
	b.WriteString("}\n")

	b.WriteString("strings = {\n")
	for _, s := range f.Strings.Strings {
		fmt.Fprintf(&b, "%q\n", s)
	}
	b.WriteString("}\n")
	fmt.Fprintf(&b, "stringChunkPadding = %d\n", f.Strings.PaddingCount)

	b.WriteString("files = {\n")
	for i := range f.Entries {
		e := &f.Entries[i]
		typ, name, err := f.EntryStrings(e)
		if err != nil {
			typ, name = "?", "?"
		}
		fmt.Fprintf(&b, "%q %q {\n", typ, name)
		fmt.Fprintf(&b, "dataOffset = %d;\n", e.DataOffset)
		fmt.Fprintf(&b, "dataSize = %d;\n", e.DataSize)
		fmt.Fprintf(&b, "uncompressedSize = %d;\n", e.UncompressedSize)
		fmt.Fprintf(&b, "dataCheckSum = %d;\n", e.DataCheckSum)
		fmt.Fprintf(&b, "generationTimeStamp = %d;\n", e.GenerationTimeStamp)
		fmt.Fprintf(&b, "defaultHash = %d;\n", e.DefaultHash)
		fmt.Fprintf(&b, "version = %d;\n", e.Version)
		fmt.Fprintf(&b, "flags = %d;\n", e.Flags)
		fmt.Fprintf(&b, "compMode = %d;\n", e.CompMode)
		fmt.Fprintf(&b, "variation = %d;\n", e.Variation)
		fmt.Fprintf(&b, "numDependencies = %d;\n", e.NumDependencies)
		b.WriteString("}\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// ExtensionAudit tallies the file extensions seen per resource type across
// one or more archives.
type ExtensionAudit struct {
	// type string -> set of extensions.
	Types map[string]map[string]bool
}

// NewExtensionAudit returns an empty audit.
func NewExtensionAudit() *ExtensionAudit {
	return &ExtensionAudit{Types: make(map[string]map[string]bool)}
}

// Add records every entry of f.
func (a *ExtensionAudit) Add(f *File) error {
	for i := range f.Entries {
		typ, name, err := f.EntryStrings(&f.Entries[i])
		if err != nil {
			return err
		}
		ext := "<NO EXTENSION>"
		if dot := strings.IndexByte(name, '.'); dot >= 0 {
			ext = name[dot:]
		}
		if a.Types[typ] == nil {
			a.Types[typ] = make(map[string]bool)
		}
		a.Types[typ][ext] = true
	}
	return nil
}

// String renders the audit.
func (a *ExtensionAudit) String() string {
	types := make([]string, 0, len(a.Types))
	for t := range a.Types {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "%s = {\n", t)
		exts := make([]string, 0, len(a.Types[t]))
		for e := range a.Types[t] {
			exts = append(exts, e)
		}
		sort.Strings(exts)
		for _, e := range exts {
			fmt.Fprintf(&b, "%q\n", e)
		}
		b.WriteString("}\n")
	}
	return b.String()
}

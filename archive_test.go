// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"bytes"
	"testing"
)

func testModFiles(files map[string]string) []*ModFile {
	mod := &ModDef{Name: "test"}
	for path, data := range files {
		mod.Files = append(mod.Files, ModFile{
			Parent:    mod,
			AssetType: RTStreamFile,
			AssetPath: path,
			RealPath:  "rs_streamfile/" + path,
			Data:      []byte(data),
		})
	}
	out := make([]*ModFile, 0, len(mod.Files))
	for i := range mod.Files {
		out = append(out, &mod.Files[i])
	}
	return out
}

func mustEncode(t *testing.T, f *File, payloads [][]byte) []byte {
	t.Helper()
	data, err := f.Encode(payloads)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func mustParse(t *testing.T, data []byte) *File {
	t.Helper()
	f, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	if err := f.Parse(); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return f
}

func TestMinimalArchiveRoundTrip(t *testing.T) {
	f, payloads, err := BuildArchive(nil)
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}
	encoded := mustEncode(t, f, payloads)

	parsed := mustParse(t, encoded)
	h := &parsed.Header

	if string(h.Magic[:]) != ResourceMagic {
		t.Errorf("magic got %q", h.Magic)
	}
	if h.Version != ArchiveVersion {
		t.Errorf("version got %d, want %d", h.Version, ArchiveVersion)
	}
	if h.NumResources != 0 || len(parsed.Entries) != 0 {
		t.Errorf("expected no entries, got %d", h.NumResources)
	}
	if h.StringTableOffset != 128 {
		t.Errorf("stringTableOffset got %d, want 128", h.StringTableOffset)
	}
	if h.StringTableSize != 16 {
		t.Errorf("stringTableSize got %d, want 16", h.StringTableSize)
	}
	if h.DataOffset%8 != 0 {
		t.Errorf("dataOffset %d not 8-byte aligned", h.DataOffset)
	}

	again := mustEncode(t, parsed, nil)
	if !bytes.Equal(encoded, again) {
		t.Error("read-write-read round trip is not byte identical")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	modfiles := testModFiles(map[string]string{
		"foo/alpha.decl": "alpha-data",
		"foo/beta":       "beta-data-spanning-more-than-one-block",
		"gamma":          "",
	})
	f, payloads, err := BuildArchive(modfiles)
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}
	encoded := mustEncode(t, f, payloads)

	parsed := mustParse(t, encoded)
	if parsed.Header.NumResources != 3 {
		t.Fatalf("numResources got %d, want 3", parsed.Header.NumResources)
	}

	found := make(map[string]string)
	for i := range parsed.Entries {
		e := &parsed.Entries[i]
		typ, name, err := parsed.EntryStrings(e)
		if err != nil {
			t.Fatalf("EntryStrings failed: %v", err)
		}
		if typ != "rs_streamfile" {
			t.Errorf("entry %d type got %q", i, typ)
		}
		data := parsed.EntryData(e)
		if data.Code != EntryDataOK {
			t.Fatalf("EntryData code %s", data.Code)
		}
		found[name] = string(data.Buffer)
	}
	for i := range modfiles {
		if got := found[modfiles[i].AssetPath]; got != string(modfiles[i].Data) {
			t.Errorf("payload for %s got %q, want %q",
				modfiles[i].AssetPath, got, modfiles[i].Data)
		}
	}

	again := mustEncode(t, parsed, nil)
	if !bytes.Equal(encoded, again) {
		t.Error("read-write-read round trip is not byte identical")
	}
}

func TestSynthesizedEntryInvariants(t *testing.T) {
	modfiles := testModFiles(map[string]string{
		"one": "payload one",
		"two": "payload two, longer",
	})
	f, _, err := BuildArchive(modfiles)
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}

	if f.Strings.Strings[0] != StringTablePreamble[0] ||
		f.Strings.Strings[1] != StringTablePreamble[1] {
		t.Errorf("string chunk does not start with the reserved preamble: %v",
			f.Strings.Strings[:2])
	}

	for i := range f.Entries {
		e := &f.Entries[i]
		if e.CompMode != CompModeNone {
			t.Errorf("entry %d compMode got %d", i, e.CompMode)
		}
		if e.DataSize != e.UncompressedSize {
			t.Errorf("entry %d dataSize %d != uncompressedSize %d",
				i, e.DataSize, e.UncompressedSize)
		}
		if e.DataCheckSum != e.DefaultHash {
			t.Errorf("entry %d dataCheckSum != defaultHash", i)
		}
		if e.DataOffset%8 != 0 {
			t.Errorf("entry %d dataOffset %d not aligned", i, e.DataOffset)
		}
		if e.Strings != uint64(i)*2 {
			t.Errorf("entry %d strings got %d, want %d", i, e.Strings, i*2)
		}
		if e.NumStrings != 2 || e.NumDependencies != 0 {
			t.Errorf("entry %d counts got (%d,%d)", i, e.NumStrings, e.NumDependencies)
		}
	}

	for i := range modfiles {
		want := ResourceMurmurHash(modfiles[i].Data)
		var got uint64
		typ, name := "", ""
		for j := range f.Entries {
			typ, name, _ = f.EntryStrings(&f.Entries[j])
			if name == modfiles[i].AssetPath && typ == "rs_streamfile" {
				got = f.Entries[j].DataCheckSum
			}
		}
		if got != want {
			t.Errorf("checksum for %s got %#x, want %#x", modfiles[i].AssetPath, got, want)
		}
	}
}

// The trailing magic is padded with 0 or 4 bytes depending on the meta
// offset parity; both layouts must round trip.
func TestTrailingMagicPadSizes(t *testing.T) {
	// Synthesized archives land on an aligned meta offset: 4 pad bytes.
	f, payloads, err := BuildArchive(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Header.GapSize(); got != 8 {
		t.Fatalf("aligned layout gap got %d, want 8", got)
	}
	encoded := mustEncode(t, f, payloads)
	reparsed := mustParse(t, encoded)
	if !bytes.Equal(encoded, mustEncode(t, reparsed, nil)) {
		t.Error("4-pad layout round trip not byte identical")
	}

	// An odd dependency-index count shifts the meta offset to a 4-aligned
	// position: 0 pad bytes.
	f2, _, err := BuildArchive(nil)
	if err != nil {
		t.Fatal(err)
	}
	f2.Header.NumDepIndices = 1
	f2.DependencyIndex = []uint32{0}
	f2.Header.DataOffset = f2.Header.ExpectedMetaOffset() + 4
	if got := f2.Header.GapSize(); got != 4 {
		t.Fatalf("unaligned layout gap got %d, want 4", got)
	}
	encoded2 := mustEncode(t, f2, [][]byte{})
	reparsed2 := mustParse(t, encoded2)
	if !bytes.Equal(encoded2, mustEncode(t, reparsed2, nil)) {
		t.Error("0-pad layout round trip not byte identical")
	}
}

func TestParseRejectsCorruption(t *testing.T) {
	f, payloads, err := BuildArchive(testModFiles(map[string]string{"a": "b"}))
	if err != nil {
		t.Fatal(err)
	}
	good := mustEncode(t, f, payloads)

	tests := []struct {
		name   string
		mutate func([]byte)
		want   error
	}{
		{"bad magic", func(b []byte) { b[0] = 'X' }, ErrBadMagic},
		{"bad version", func(b []byte) { b[4] = 99 }, ErrUnsupportedVersion},
		{"bad trailing magic", func(b []byte) {
			off := f.Header.ExpectedMetaOffset()
			b[off] = 'X'
		}, ErrBadTrailingMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), good...)
			tt.mutate(data)
			parsed, err := NewBytes(data, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := parsed.Parse(); got != tt.want {
				t.Errorf("Parse got %v, want %v", got, tt.want)
			}
		})
	}
}

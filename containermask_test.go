// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestContainerMaskRoundTrip(t *testing.T) {
	m := &ContainerMask{
		Entries: []MaskEntry{
			{Fingerprint: 0x1111, Bits: []uint64{^uint64(0)}},
			{Fingerprint: 0x2222, Bits: []uint64{0b101, 0x8000000000000000}},
		},
	}
	m.reindex()

	parsed, err := ParseContainerMask(m.Encode())
	if err != nil {
		t.Fatalf("ParseContainerMask failed: %v", err)
	}
	if !bytes.Equal(parsed.Encode(), m.Encode()) {
		t.Error("mask round trip is not byte identical")
	}
	if parsed.HasCompactTimestamp {
		t.Error("unexpected compact timestamp")
	}
}

func TestContainerMaskCompactTimestamp(t *testing.T) {
	m := &ContainerMask{
		CompactTimestamp:    0x66A1F123,
		HasCompactTimestamp: true,
		Entries:             []MaskEntry{{Fingerprint: 7, Bits: []uint64{1}}},
	}
	m.reindex()
	encoded := m.Encode()

	parsed, err := ParseContainerMask(encoded)
	if err != nil {
		t.Fatalf("ParseContainerMask failed: %v", err)
	}
	if !parsed.HasCompactTimestamp || parsed.CompactTimestamp != 0x66A1F123 {
		t.Errorf("compact timestamp got (%v, %#x)", parsed.HasCompactTimestamp, parsed.CompactTimestamp)
	}
	if !bytes.Equal(parsed.Encode(), encoded) {
		t.Error("timestamped mask round trip is not byte identical")
	}
}

func TestMaskEnabledSemantics(t *testing.T) {
	m := &ContainerMask{
		Entries: []MaskEntry{
			{Fingerprint: 1, Bits: []uint64{0b101}},
			{Fingerprint: 2, Bits: []uint64{0, 1}},
		},
	}
	m.reindex()

	tests := []struct {
		fingerprint uint64
		index       uint32
		want        bool
	}{
		{1, 0, true},
		{1, 1, false},
		{1, 2, true},
		{1, 64, false}, // past the bitmap
		{2, 0, false},
		{2, 64, true}, // first bit of the second word
		{99, 12345, true}, // unknown archive: everything enabled
	}
	for _, tt := range tests {
		if got := m.Enabled(tt.fingerprint, tt.index); got != tt.want {
			t.Errorf("Enabled(%d, %d) got %v, want %v",
				tt.fingerprint, tt.index, got, tt.want)
		}
	}

	if err := m.Validate(1, 65); err != ErrMaskTooSmall {
		t.Errorf("Validate(1, 65) got %v, want ErrMaskTooSmall", err)
	}
	if err := m.Validate(1, 64); err != nil {
		t.Errorf("Validate(1, 64) got %v", err)
	}
	if err := m.Validate(99, 1<<20); err != nil {
		t.Errorf("Validate on unknown archive got %v", err)
	}
}

// Synthesized bitmaps carry one spare word beyond the entry count.
var maskWordsTests = []struct {
	numResources uint32
	want         uint32
}{
	{0, 1},
	{1, 2},
	{3, 2},
	{63, 2},
	{64, 2},
	{65, 3},
	{128, 3},
}

func TestMaskWords(t *testing.T) {
	for _, tt := range maskWordsTests {
		if got := maskWords(tt.numResources); got != tt.want {
			t.Errorf("maskWords(%d) got %d, want %d", tt.numResources, got, tt.want)
		}
	}
}

func TestMaskAppend(t *testing.T) {
	m := &ContainerMask{}
	m.reindex()
	m.Append(0xABCD, 3)

	e := m.Lookup(0xABCD)
	if e == nil {
		t.Fatal("appended entry not found")
	}
	if len(e.Bits) != 2 {
		t.Fatalf("appended bitmap got %d words, want 2", len(e.Bits))
	}
	for i := uint32(0); i < 3; i++ {
		if !e.Enabled(i) {
			t.Errorf("entry %d not enabled", i)
		}
	}
}

func TestContainerMaskFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "common_mod.resources")

	modfiles := testModFiles(map[string]string{
		"a": "1", "b": "2", "c": "3",
	})
	if err := BuildArchiveFile(modfiles, path); err != nil {
		t.Fatalf("BuildArchiveFile failed: %v", err)
	}

	fingerprint, numResources, err := ContainerMaskFingerprint(path)
	if err != nil {
		t.Fatalf("ContainerMaskFingerprint failed: %v", err)
	}
	if want := ResourceMurmurHash([]byte("common_mod.resources")); fingerprint != want {
		t.Errorf("fingerprint got %#x, want %#x", fingerprint, want)
	}
	if numResources != 3 {
		t.Errorf("numResources got %d, want 3", numResources)
	}

	one := MaskEntry{Fingerprint: fingerprint, Bits: []uint64{^uint64(0)}}
	for i := uint32(0); i < 3; i++ {
		if !one.Enabled(i) {
			t.Errorf("all-ones single word does not enable entry %d", i)
		}
	}
}

// buildMetaResources writes a meta.resources wrapping the given mask with
// an uncompressed payload.
func buildMetaResources(t *testing.T, path string, mask *ContainerMask) {
	t.Helper()
	mf := &ModFile{
		AssetType: RTStreamFile,
		AssetPath: "generated/containermask",
		Data:      mask.Encode(),
		Parent:    &ModDef{Name: "meta"},
	}
	if err := BuildArchiveFile([]*ModFile{mf}, path); err != nil {
		t.Fatalf("cannot build %s: %v", path, err)
	}
}

func TestRebuildContainerMask(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, ContainerMaskName)
	archivePath := filepath.Join(dir, "common_mod.resources")

	initial := &ContainerMask{Entries: []MaskEntry{{Fingerprint: 42, Bits: []uint64{7}}}}
	initial.reindex()
	buildMetaResources(t, metaPath, initial)

	if IsModdedMeta(metaPath) {
		t.Fatal("fresh meta.resources reports modded")
	}

	if err := BuildArchiveFile(testModFiles(map[string]string{"x": "y"}), archivePath); err != nil {
		t.Fatal(err)
	}
	if err := RebuildContainerMask(metaPath, archivePath, nil); err != nil {
		t.Fatalf("RebuildContainerMask failed: %v", err)
	}

	if !IsModdedMeta(metaPath) {
		t.Error("rebuilt meta.resources does not report modded")
	}

	mask, err := OpenContainerMask(metaPath, nil)
	if err != nil {
		t.Fatalf("OpenContainerMask failed: %v", err)
	}
	if len(mask.Entries) != 2 {
		t.Fatalf("mask entries got %d, want 2", len(mask.Entries))
	}
	added := mask.Lookup(ResourceMurmurHash([]byte("common_mod.resources")))
	if added == nil {
		t.Fatal("new archive's fingerprint missing from mask")
	}
	for _, word := range added.Bits {
		if word != ^uint64(0) {
			t.Errorf("appended bitmap word got %#x, want all ones", word)
		}
	}

	// The rewritten wrapping entry stays uncompressed and self-consistent.
	f, err := New(metaPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		t.Fatal(err)
	}
	e := &f.Entries[0]
	if e.CompMode != CompModeNone {
		t.Errorf("compMode got %d, want 0", e.CompMode)
	}
	if e.DataSize != e.UncompressedSize {
		t.Error("dataSize != uncompressedSize after rewrite")
	}
	if e.DataCheckSum != e.DefaultHash {
		t.Error("dataCheckSum != defaultHash after rewrite")
	}
	payload := f.EntryData(e)
	if payload.Code != EntryDataOK {
		t.Fatalf("payload code %s", payload.Code)
	}
	if got := ResourceMurmurHash(payload.Buffer); got != e.DataCheckSum {
		t.Error("rewritten checksum does not match payload")
	}
}

func TestOverrideTracker(t *testing.T) {
	tr := NewOverrideTracker()

	// First copy disabled, later enabled copy re-emits once.
	if !tr.ShouldEmit("foo", false) {
		t.Error("first occurrence must emit")
	}
	if tr.ShouldEmit("foo", false) {
		t.Error("second disabled occurrence must not emit")
	}
	if !tr.ShouldEmit("foo", true) {
		t.Error("enabled occurrence after a disabled emission must re-emit")
	}
	if tr.ShouldEmit("foo", true) {
		t.Error("an asset may be emitted at most twice")
	}

	// First copy enabled wins immediately.
	if !tr.ShouldEmit("bar", true) {
		t.Error("first occurrence must emit")
	}
	if tr.ShouldEmit("bar", true) || tr.ShouldEmit("bar", false) {
		t.Error("later occurrences must not emit after an enabled emission")
	}
}

func TestOverrideTrackerReverse(t *testing.T) {
	tr := NewOverrideTracker()

	// Reverse walk: enabled copies overwrite, the last (highest priority)
	// enabled copy wins.
	if !tr.ShouldEmitReverse("foo", false) {
		t.Error("first occurrence must emit")
	}
	if !tr.ShouldEmitReverse("foo", true) {
		t.Error("enabled occurrence must overwrite")
	}
	if tr.ShouldEmitReverse("foo", false) {
		t.Error("disabled occurrence must not overwrite an emission")
	}
}

func TestIsModdedMetaMissingFile(t *testing.T) {
	if IsModdedMeta(filepath.Join(t.TempDir(), "nope.resources")) {
		t.Error("missing file reported as modded")
	}
}

func TestOpenContainerMaskRejectsMultiEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ContainerMaskName)
	if err := BuildArchiveFile(testModFiles(map[string]string{"a": "1", "b": "2"}), path); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenContainerMask(path, nil); err != ErrMaskEntryCount {
		t.Errorf("got %v, want ErrMaskEntryCount", err)
	}
	_ = os.Remove(path)
}

// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Errors
var (
	// ErrMaskPayload is returned when the container-mask payload is
	// malformed.
	ErrMaskPayload = errors.New("corrupt container mask payload")

	// ErrMaskTooSmall is returned when an archive's bitmap holds fewer bits
	// than the archive holds entries.
	ErrMaskTooSmall = errors.New("container mask bitmap smaller than archive entry count")

	// ErrMaskEntryCount is returned when meta.resources does not wrap
	// exactly one entry.
	ErrMaskEntryCount = errors.New("container mask archive must hold exactly one entry")
)

// ModdedTimeStamp is the generationTimeStamp sentinel stored on the
// container-mask entry to mark the archive set as modded.
const ModdedTimeStamp = 123456

// ContainerMaskName is the archive wrapping the container mask.
const ContainerMaskName = "meta.resources"

// MaskEntry is one archive's bitmap. Bit i enables resource entry i of the
// fingerprinted archive.
type MaskEntry struct {
	Fingerprint uint64
	Bits        []uint64
}

// Enabled reports whether entry index i is enabled.
func (e *MaskEntry) Enabled(i uint32) bool {
	word := i / 64
	if word >= uint32(len(e.Bits)) {
		return false
	}
	return e.Bits[word]&(1<<(i%64)) != 0
}

// ContainerMask is the decompressed payload of the container-mask archive:
// a bitmap per known archive, keyed by fingerprint. Archives without a
// bitmap are fully enabled.
type ContainerMask struct {
	// Present on idTech7-era masks; preserved verbatim on rewrite.
	CompactTimestamp    uint32
	HasCompactTimestamp bool

	Entries []MaskEntry

	index map[uint64]*MaskEntry
}

// ParseContainerMask decodes a decompressed container-mask payload.
func ParseContainerMask(payload []byte) (*ContainerMask, error) {
	r := NewReader(payload)
	m := &ContainerMask{}

	count, err := r.Uint32()
	if err != nil {
		return nil, ErrMaskPayload
	}
	if count&0xFFFFF000 != 0 {
		m.CompactTimestamp = count
		m.HasCompactTimestamp = true
		if count, err = r.Uint32(); err != nil {
			return nil, ErrMaskPayload
		}
	}

	m.Entries = make([]MaskEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e MaskEntry
		if e.Fingerprint, err = r.Uint64(); err != nil {
			return nil, ErrMaskPayload
		}
		words, err := r.Uint32()
		if err != nil {
			return nil, ErrMaskPayload
		}
		e.Bits = make([]uint64, words)
		for w := range e.Bits {
			if e.Bits[w], err = r.Uint64(); err != nil {
				return nil, ErrMaskPayload
			}
		}
		m.Entries = append(m.Entries, e)
	}
	if !r.ReachedEOF() {
		return nil, ErrMaskPayload
	}
	m.reindex()
	return m, nil
}

// Encode serializes the mask payload.
func (m *ContainerMask) Encode() []byte {
	size := 4
	for i := range m.Entries {
		size += 12 + len(m.Entries[i].Bits)*8
	}
	w := NewWriter(size + 4)
	if m.HasCompactTimestamp {
		w.WriteUint32(m.CompactTimestamp)
	}
	w.WriteUint32(uint32(len(m.Entries)))
	for i := range m.Entries {
		e := &m.Entries[i]
		w.WriteUint64(e.Fingerprint)
		w.WriteUint32(uint32(len(e.Bits)))
		for _, word := range e.Bits {
			w.WriteUint64(word)
		}
	}
	return w.Bytes()
}

func (m *ContainerMask) reindex() {
	m.index = make(map[uint64]*MaskEntry, len(m.Entries))
	for i := range m.Entries {
		m.index[m.Entries[i].Fingerprint] = &m.Entries[i]
	}
}

// Lookup returns the bitmap for an archive fingerprint, or nil when the
// mask does not know the archive (meaning everything is enabled).
func (m *ContainerMask) Lookup(fingerprint uint64) *MaskEntry {
	if m == nil {
		return nil
	}
	return m.index[fingerprint]
}

// Enabled reports whether entry i of the fingerprinted archive is loaded
// by the engine.
func (m *ContainerMask) Enabled(fingerprint uint64, i uint32) bool {
	e := m.Lookup(fingerprint)
	if e == nil {
		return true
	}
	return e.Enabled(i)
}

// Validate checks that the archive's bitmap covers numResources entries.
func (m *ContainerMask) Validate(fingerprint uint64, numResources uint32) error {
	e := m.Lookup(fingerprint)
	if e == nil {
		return nil
	}
	if uint32(len(e.Bits))*64 < numResources {
		return ErrMaskTooSmall
	}
	return nil
}

// maskWords returns the bitmap word count for a synthesized archive. The
// extra word is deliberate and pinned by test.
func maskWords(numResources uint32) uint32 {
	words := numResources / 64
	if numResources%64 != 0 {
		words++
	}
	return words + 1
}

// Append adds an all-ones bitmap for a newly built archive, enabling every
// entry.
func (m *ContainerMask) Append(fingerprint uint64, numResources uint32) {
	e := MaskEntry{
		Fingerprint: fingerprint,
		Bits:        make([]uint64, maskWords(numResources)),
	}
	for i := range e.Bits {
		e.Bits[i] = ^uint64(0)
	}
	m.Entries = append(m.Entries, e)
	m.reindex()
}

// ContainerMaskFingerprint identifies an archive inside the container
// mask: the resource murmur of the archive's basename. The archive's entry
// count rides alongside so callers can size bitmaps.
func ContainerMaskFingerprint(archivePath string) (fingerprint uint64, numResources uint32, err error) {
	f, err := New(archivePath, &Options{Flags: HeaderOnly})
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return 0, 0, err
	}
	return ResourceMurmurHash([]byte(filepath.Base(archivePath))), f.Header.NumResources, nil
}

// OpenContainerMask reads and decompresses the mask payload wrapped in
// metaPath.
func OpenContainerMask(metaPath string, opts *Options) (*ContainerMask, error) {
	f, err := New(metaPath, childOptions(opts))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return nil, err
	}
	if len(f.Entries) != 1 {
		return nil, ErrMaskEntryCount
	}
	data := f.EntryData(&f.Entries[0])
	if data.Code != EntryDataOK {
		return nil, ErrMaskPayload
	}
	return ParseContainerMask(data.Buffer)
}

// RebuildContainerMask registers a newly built archive inside metaPath's
// mask with every entry enabled, and rewrites the wrapping archive. The
// modified payload is stored uncompressed and the wrapping entry's
// generationTimeStamp is set to the modded sentinel.
func RebuildContainerMask(metaPath, newArchivePath string, opts *Options) error {
	fingerprint, numResources, err := ContainerMaskFingerprint(newArchivePath)
	if err != nil {
		return err
	}

	f, err := New(metaPath, childOptions(opts))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return err
	}
	if len(f.Entries) != 1 {
		return ErrMaskEntryCount
	}

	e := &f.Entries[0]
	data := f.EntryData(e)
	if data.Code != EntryDataOK {
		return ErrMaskPayload
	}
	mask, err := ParseContainerMask(data.Buffer)
	if err != nil {
		return err
	}
	mask.Append(fingerprint, numResources)
	payload := mask.Encode()

	// The modified payload is not recompressed.
	e.CompMode = CompModeNone
	e.DataSize = uint64(len(payload))
	e.UncompressedSize = e.DataSize
	e.DataCheckSum = ResourceMurmurHash(payload)
	e.DefaultHash = e.DataCheckSum

	// The game-update detection checks this sentinel to decide whether
	// meta.resources is currently modded.
	e.GenerationTimeStamp = ModdedTimeStamp

	encoded, err := f.Encode([][]byte{payload})
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, encoded, 0666)
}

// IsModdedMeta reports whether metaPath's wrapping entry carries the
// modded sentinel.
func IsModdedMeta(metaPath string) bool {
	f, err := New(metaPath, &Options{Flags: StopAfterEntries})
	if err != nil {
		return false
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return false
	}
	return len(f.Entries) == 1 && f.Entries[0].GenerationTimeStamp == ModdedTimeStamp
}

// childOptions derives ReadEverything options carrying the caller's
// decompressor and logger.
func childOptions(opts *Options) *Options {
	if opts == nil {
		return &Options{}
	}
	return &Options{Decompressor: opts.Decompressor, Logger: opts.Logger}
}

// OverrideTracker enforces the mask-aware emission policy during
// extraction: each asset is emitted once from the first archive that holds
// it, and re-emitted only when that first copy was mask-disabled and a
// later archive holds an enabled copy. Safe for concurrent use.
type OverrideTracker struct {
	mu      sync.Mutex
	emitted map[string]bool
}

// NewOverrideTracker returns an empty tracker.
func NewOverrideTracker() *OverrideTracker {
	return &OverrideTracker{emitted: make(map[string]bool)}
}

// ShouldEmit decides emission for a walk in priority order (highest
// first).
func (t *OverrideTracker) ShouldEmit(key string, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.emitted[key]
	if !ok {
		t.emitted[key] = enabled
		return true
	}
	if !prev && enabled {
		t.emitted[key] = true
		return true
	}
	return false
}

// Seen reports whether key has already been observed.
func (t *OverrideTracker) Seen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.emitted[key]
	return ok
}

// ShouldEmitReverse decides emission for a walk in reverse priority order
// (lowest first), where each enabled copy overwrites the previous
// emission. The final state matches ShouldEmit over the forward walk.
func (t *OverrideTracker) ShouldEmitReverse(key string, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.emitted[key]
	if enabled {
		t.emitted[key] = true
		return true
	}
	if !ok {
		t.emitted[key] = false
		return true
	}
	return false
}

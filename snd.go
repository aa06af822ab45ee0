// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Errors
var (
	// ErrSndHeader is returned when a .snd archive header is malformed.
	ErrSndHeader = errors.New("corrupt snd archive header")

	// ErrSndMask is returned when the audio container-mask section is
	// malformed.
	ErrSndMask = errors.New("corrupt audio container mask")
)

// sndEntrySize is the on-disk size of one sample entry.
const sndEntrySize = 32

// SndEntry is one audio sample inside a .snd archive.
type SndEntry struct {
	Unknown     uint64
	ID          uint32
	EncodedSize uint32

	// Relative to the beginning of the file.
	Offset uint32

	DecodedSize uint32
	MetaSize    uint32

	// Relative to the start of the entry-meta section.
	MetaOffset uint32
}

// SndFile is an opened .snd audio archive: a version word, a header chunk
// holding per-entry RIFF metadata, and the sample entry table.
type SndFile struct {
	Version       uint32
	HeaderSize    uint32
	EntryMetaSize uint32

	EntryMeta []byte
	Entries   []SndEntry

	Path string
}

// ReadSndFile reads a .snd archive's header and entry table. Sample data
// is streamed separately through SampleData.
func ReadSndFile(path string) (*SndFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var head [12]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return nil, ErrSndHeader
	}
	r := NewReader(head[:])
	s := &SndFile{Path: path}
	if s.Version, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.HeaderSize, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.EntryMetaSize, err = r.Uint32(); err != nil {
		return nil, err
	}
	if s.EntryMetaSize+4 > s.HeaderSize {
		return nil, ErrSndHeader
	}

	numEntries := (s.HeaderSize - s.EntryMetaSize - 4) / sndEntrySize

	s.EntryMeta = make([]byte, s.EntryMetaSize)
	if _, err := io.ReadFull(f, s.EntryMeta); err != nil {
		return nil, ErrSndHeader
	}

	table := make([]byte, numEntries*sndEntrySize)
	if _, err := io.ReadFull(f, table); err != nil {
		return nil, ErrSndHeader
	}
	tr := NewReader(table)
	s.Entries = make([]SndEntry, numEntries)
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.Unknown, err = tr.Uint64(); err != nil {
			return nil, err
		}
		for _, p := range []*uint32{&e.ID, &e.EncodedSize, &e.Offset, &e.DecodedSize, &e.MetaSize, &e.MetaOffset} {
			if *p, err = tr.Uint32(); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// SampleName derives an output name for a sample. Music samples carry an
// adtllabl RIFF field in their metadata; when present (and searchForLabel
// is set) it prefixes the sample id.
func (s *SndFile) SampleName(e *SndEntry, searchForLabel bool) string {
	name := ""
	if searchForLabel && e.MetaOffset+e.MetaSize <= uint32(len(s.EntryMeta)) {
		meta := s.EntryMeta[e.MetaOffset : e.MetaOffset+e.MetaSize]
		if i := bytes.Index(meta, []byte("adtllabl")); i >= 0 && i+16 <= len(meta) {
			r := NewReader(meta[i+8:])
			// The length includes 4 leading null bytes to skip.
			if n, err := r.Uint32(); err == nil {
				if err := r.Skip(4); err == nil {
					if label, err := r.ReadBytes(int(n) - 4); err == nil && n >= 4 {
						name = string(label) + "_"
					}
				}
			}
		}
	}
	return fmt.Sprintf("%s%d.wav", name, e.ID)
}

// SampleData copies a sample's encoded bytes from ra.
func (s *SndFile) SampleData(e *SndEntry, ra io.ReaderAt) ([]byte, error) {
	buf := make([]byte, e.EncodedSize)
	if _, err := ra.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// SndMaskEntry is one audio archive's bitmap. Bit i enables sample i of
// the named archive, in 32-bit words.
type SndMaskEntry struct {
	ArchiveName string
	Bits        []uint32
}

// Enabled reports whether sample index i is enabled.
func (e *SndMaskEntry) Enabled(i uint32) bool {
	word := i / 32
	if word >= uint32(len(e.Bits)) {
		return false
	}
	return e.Bits[word]&(1<<(i%32)) != 0
}

// SndContainerMask is the audio counterpart of the container mask, keyed
// by archive file name. Archives without a bitmap are fully enabled.
type SndContainerMask struct {
	Entries []SndMaskEntry

	index map[string]*SndMaskEntry
}

// ParseSndContainerMask decodes the audio mask section: per archive group
// a name, then one bitmap per patch archive of that group. Patch archives
// are named <stem>_patch_<n>.snd.
func ParseSndContainerMask(payload []byte) (*SndContainerMask, error) {
	r := NewReader(payload)
	m := &SndContainerMask{}

	numGroups, err := r.Uint32()
	if err != nil {
		return nil, ErrSndMask
	}
	for g := uint32(0); g < numGroups; g++ {
		nameLen, err := r.Uint32()
		if err != nil {
			return nil, ErrSndMask
		}
		name, err := r.ReadBytes(int(nameLen))
		if err != nil || nameLen < 4 {
			return nil, ErrSndMask
		}
		stem := string(name[:nameLen-4]) // cut off the .snd

		numArchives, err := r.Uint32()
		if err != nil {
			return nil, ErrSndMask
		}
		for a := uint32(0); a < numArchives; a++ {
			e := SndMaskEntry{}
			if a == 0 {
				e.ArchiveName = stem + ".snd"
			} else {
				e.ArchiveName = fmt.Sprintf("%s_patch_%d.snd", stem, a)
			}

			// Container id.
			if err := r.Skip(4); err != nil {
				return nil, ErrSndMask
			}
			words, err := r.Uint32()
			if err != nil {
				return nil, ErrSndMask
			}
			e.Bits = make([]uint32, words)
			for w := range e.Bits {
				if e.Bits[w], err = r.Uint32(); err != nil {
					return nil, ErrSndMask
				}
			}
			m.Entries = append(m.Entries, e)
		}
	}
	if !r.ReachedEOF() {
		return nil, ErrSndMask
	}

	m.index = make(map[string]*SndMaskEntry, len(m.Entries))
	for i := range m.Entries {
		m.index[m.Entries[i].ArchiveName] = &m.Entries[i]
	}
	return m, nil
}

// LoadSndContainerMask reads soundDir/soundmetadata.bin and decodes the
// container mask stored at its tail.
func LoadSndContainerMask(soundDir string) (*SndContainerMask, error) {
	payload, err := os.ReadFile(filepath.Join(soundDir, "soundmetadata.bin"))
	if err != nil {
		return nil, err
	}
	return ParseSoundMetadata(payload)
}

// ParseSoundMetadata walks the leading sections of soundmetadata.bin and
// decodes the container mask that follows them.
func ParseSoundMetadata(payload []byte) (*SndContainerMask, error) {
	r := NewReader(payload)

	skipString := func() error {
		n, err := r.Uint32()
		if err != nil {
			return err
		}
		return r.Skip(int(n))
	}
	count := func() (uint32, error) {
		return r.Uint32()
	}

	// Sound event list.
	n, err := count()
	if err != nil {
		return nil, ErrSndMask
	}
	for i := uint32(0); i < n; i++ {
		if err := skipString(); err != nil {
			return nil, ErrSndMask
		}
		// Bank id and language id.
		if err := r.Skip(5); err != nil {
			return nil, ErrSndMask
		}
		if err := skipString(); err != nil {
			return nil, ErrSndMask
		}
	}

	// Two id/string sections.
	if n, err = count(); err != nil {
		return nil, ErrSndMask
	}
	for i := uint32(0); i < n; i++ {
		if err := r.Skip(4); err != nil {
			return nil, ErrSndMask
		}
		if err := skipString(); err != nil {
			return nil, ErrSndMask
		}
	}
	if n, err = count(); err != nil {
		return nil, ErrSndMask
	}
	for i := uint32(0); i < n; i++ {
		if err := skipString(); err != nil {
			return nil, ErrSndMask
		}
		if err := r.Skip(4); err != nil {
			return nil, ErrSndMask
		}
	}

	// Music switches and states.
	for section := 0; section < 2; section++ {
		if n, err = count(); err != nil {
			return nil, ErrSndMask
		}
		for i := uint32(0); i < n; i++ {
			if err := r.Skip(4); err != nil {
				return nil, ErrSndMask
			}
			if err := skipString(); err != nil {
				return nil, ErrSndMask
			}
			sub, err := count()
			if err != nil {
				return nil, ErrSndMask
			}
			for j := uint32(0); j < sub; j++ {
				if err := r.Skip(4); err != nil {
					return nil, ErrSndMask
				}
				if err := skipString(); err != nil {
					return nil, ErrSndMask
				}
			}
		}
	}

	// Sample lists, either per-language or plain SFX lists.
	if n, err = count(); err != nil {
		return nil, ErrSndMask
	}
	for i := uint32(0); i < n; i++ {
		if err := skipString(); err != nil {
			return nil, ErrSndMask
		}
		if err := r.Skip(4 + 11); err != nil {
			return nil, ErrSndMask
		}
		listLen, err := count()
		if err != nil {
			return nil, ErrSndMask
		}

		isLanguageList := false
		{
			pos := r.Position()
			if testLen, err := r.Uint32(); err == nil && testLen == 11 {
				if b, err := r.ReadBytes(11); err == nil {
					isLanguageList = bytes.Equal(b, []byte("English(US)"))
				}
			}
			if err := r.Seek(pos); err != nil {
				return nil, ErrSndMask
			}
		}

		if isLanguageList {
			for j := uint32(0); j < listLen; j++ {
				if j > 0 {
					if err := r.Skip(4); err != nil {
						return nil, ErrSndMask
					}
				}
				if err := skipString(); err != nil {
					return nil, ErrSndMask
				}
			}
			if err := r.Skip(4); err != nil {
				return nil, ErrSndMask
			}
			if listLen, err = count(); err != nil {
				return nil, ErrSndMask
			}
			for j := uint32(0); j < listLen; j++ {
				if err := r.Skip(4); err != nil {
					return nil, ErrSndMask
				}
				if err := skipString(); err != nil {
					return nil, ErrSndMask
				}
			}
		} else {
			for j := uint32(0); j < listLen; j++ {
				if err := r.Skip(4); err != nil {
					return nil, ErrSndMask
				}
				if err := skipString(); err != nil {
					return nil, ErrSndMask
				}
			}
		}
	}

	rest, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return nil, ErrSndMask
	}
	return ParseSndContainerMask(rest)
}

// Lookup returns the bitmap for an archive file name, or nil when the mask
// does not know it.
func (m *SndContainerMask) Lookup(archiveName string) *SndMaskEntry {
	if m == nil {
		return nil
	}
	return m.index[archiveName]
}

// Enabled reports whether sample i of the named archive is loaded.
func (m *SndContainerMask) Enabled(archiveName string, i uint32) bool {
	e := m.Lookup(archiveName)
	if e == nil {
		return true
	}
	return e.Enabled(i)
}

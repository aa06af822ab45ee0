// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// PackageMapSpecName is the game's top-level archive manifest.
const PackageMapSpecName = "packagemapspec.json"

// ModArchivesMap is the map name registered for injected archives. Its
// presence in the spec file doubles as the "is modded" heuristic.
const ModArchivesMap = "modarchives"

// PackageMapFile is one archive path entry.
type PackageMapFile struct {
	Name string `json:"name"`
}

// PackageMapName is one logical map name entry.
type PackageMapName struct {
	Name string `json:"name"`
}

// PackageMapSpec is the game's archive manifest: the archives that exist,
// the logical maps, and the archives belonging to each map by file index.
// Archives are discovered map by map; the later an archive is discovered,
// the higher its load priority.
type PackageMapSpec struct {
	Files       []PackageMapFile `json:"files"`
	Maps        []PackageMapName `json:"maps"`
	MapFilesMap map[string][]int `json:"mapFilesMap"`
}

// LoadPackageMapSpec reads and decodes the manifest at path.
func LoadPackageMapSpec(path string) (*PackageMapSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	spec := &PackageMapSpec{}
	if err := json.Unmarshal(data, spec); err != nil {
		return nil, err
	}
	if spec.MapFilesMap == nil {
		spec.MapFilesMap = make(map[string][]int)
	}
	return spec, nil
}

// Save writes the manifest back to path.
func (s *PackageMapSpec) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0666)
}

// PrioritizedArchiveList returns every archive path in priority order,
// index 0 highest. Archives are collected map by map in manifest order,
// first discovery wins, and the result is reversed so the last-discovered
// archive loads first.
func (s *PackageMapSpec) PrioritizedArchiveList() []string {
	added := make(map[int]bool, len(s.Files))
	ordered := make([]int, 0, len(s.Files))

	for _, m := range s.Maps {
		for _, fi := range s.MapFilesMap[m.Name] {
			if fi < 0 || fi >= len(s.Files) || added[fi] {
				continue
			}
			added[fi] = true
			ordered = append(ordered, fi)
		}
	}

	list := make([]string, len(ordered))
	for i, fi := range ordered {
		list[len(ordered)-1-i] = s.Files[fi].Name
	}
	return list
}

// InjectArchive registers relPath at the highest load priority by adding
// it to files and to the modarchives map, which sits last in discovery
// order.
func (s *PackageMapSpec) InjectArchive(relPath string) {
	fi := -1
	for i := range s.Files {
		if s.Files[i].Name == relPath {
			fi = i
			break
		}
	}
	if fi == -1 {
		fi = len(s.Files)
		s.Files = append(s.Files, PackageMapFile{Name: relPath})
	}

	hasMap := false
	for i := range s.Maps {
		if s.Maps[i].Name == ModArchivesMap {
			hasMap = true
			break
		}
	}
	if !hasMap {
		s.Maps = append(s.Maps, PackageMapName{Name: ModArchivesMap})
	}

	for _, existing := range s.MapFilesMap[ModArchivesMap] {
		if existing == fi {
			return
		}
	}
	s.MapFilesMap[ModArchivesMap] = append(s.MapFilesMap[ModArchivesMap], fi)
}

// GetPrioritizedArchiveList loads the manifest under gameDir and returns
// the prioritized archive list. The returned paths are relative to
// gameDir/base.
func GetPrioritizedArchiveList(gameDir string) ([]string, error) {
	spec, err := LoadPackageMapSpec(filepath.Join(gameDir, "base", PackageMapSpecName))
	if err != nil {
		return nil, err
	}
	return spec.PrioritizedArchiveList(), nil
}

// IsModdedMapSpec reports whether the manifest at path already references
// injected archives.
func IsModdedMapSpec(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte(ModArchivesMap))
}

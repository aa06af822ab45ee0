// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testSpec() *PackageMapSpec {
	return &PackageMapSpec{
		Files: []PackageMapFile{
			{Name: "gameresources.resources"},
			{Name: "gameresources_patch1.resources"},
			{Name: "hub.resources"},
		},
		Maps: []PackageMapName{
			{Name: "common"},
			{Name: "hub"},
		},
		MapFilesMap: map[string][]int{
			"common": {0, 1},
			"hub":    {2, 0},
		},
	}
}

func TestPrioritizedArchiveList(t *testing.T) {
	got := testSpec().PrioritizedArchiveList()

	// Discovery order is common(0,1) then hub(2, 0 already seen); the last
	// discovered archive loads first.
	want := []string{
		"hub.resources",
		"gameresources_patch1.resources",
		"gameresources.resources",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PrioritizedArchiveList got %v, want %v", got, want)
	}
}

func TestPrioritizedArchiveListIgnoresBadIndices(t *testing.T) {
	spec := testSpec()
	spec.MapFilesMap["common"] = []int{0, 99, -1, 1}
	got := spec.PrioritizedArchiveList()
	if len(got) != 3 {
		t.Errorf("expected 3 archives, got %v", got)
	}
}

func TestInjectArchive(t *testing.T) {
	spec := testSpec()
	spec.InjectArchive("modarchives/common_mod.resources")

	list := spec.PrioritizedArchiveList()
	if list[0] != "modarchives/common_mod.resources" {
		t.Errorf("injected archive is not highest priority: %v", list)
	}

	// A second injection must not duplicate anything.
	spec.InjectArchive("modarchives/common_mod.resources")
	if len(spec.Files) != 4 {
		t.Errorf("files got %d entries, want 4", len(spec.Files))
	}
	if len(spec.MapFilesMap[ModArchivesMap]) != 1 {
		t.Errorf("modarchives map got %v", spec.MapFilesMap[ModArchivesMap])
	}
	maps := 0
	for _, m := range spec.Maps {
		if m.Name == ModArchivesMap {
			maps++
		}
	}
	if maps != 1 {
		t.Errorf("modarchives registered %d times", maps)
	}
}

func TestSpecSaveLoadAndModdedHeuristic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PackageMapSpecName)

	spec := testSpec()
	if err := spec.Save(path); err != nil {
		t.Fatal(err)
	}
	if IsModdedMapSpec(path) {
		t.Error("vanilla spec reports modded")
	}

	loaded, err := LoadPackageMapSpec(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, spec) {
		t.Errorf("save/load mismatch:\n%#v\n%#v", loaded, spec)
	}

	loaded.InjectArchive("modarchives/common_mod.resources")
	if err := loaded.Save(path); err != nil {
		t.Fatal(err)
	}
	if !IsModdedMapSpec(path) {
		t.Error("injected spec does not report modded")
	}
}

func TestGetPrioritizedArchiveListMissingSpec(t *testing.T) {
	if _, err := GetPrioritizedArchiveList(t.TempDir()); !os.IsNotExist(err) {
		t.Errorf("got %v, want a not-exist error", err)
	}
}

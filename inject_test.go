// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildInjectGameDir lays out a vanilla game directory: a manifest, a
// vanilla package map spec, and a single-entry meta.resources.
func buildInjectGameDir(t *testing.T) string {
	t.Helper()
	gameDir := t.TempDir()
	base := filepath.Join(gameDir, "base")
	require.NoError(t, os.MkdirAll(base, 0777))

	require.NoError(t, testSpec().Save(filepath.Join(base, PackageMapSpecName)))

	mask := &ContainerMask{Entries: []MaskEntry{
		{Fingerprint: ResourceMurmurHash([]byte("gameresources.resources")), Bits: []uint64{^uint64(0)}},
	}}
	mask.reindex()
	buildMetaResources(t, filepath.Join(base, ContainerMaskName), mask)

	require.NoError(t, os.WriteFile(filepath.Join(base, BuildManifest),
		[]byte("build manifest bytes"), 0666))
	return gameDir
}

func newTestInjector(gameDir string, flags InjectFlag) *Injector {
	return NewInjector(InjectOptions{
		GameDir:  gameDir,
		Flags:    flags,
		CacheDir: gameDir,
	})
}

func readFileT(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestInjectFromVanilla(t *testing.T) {
	gameDir := buildInjectGameDir(t)
	base := filepath.Join(gameDir, "base")
	modsDir := filepath.Join(gameDir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0777))
	writeZip(t, filepath.Join(modsDir, "mymod.zip"), map[string]string{
		"rs_streamfile/bar": "bar content",
	})

	pmsPath := filepath.Join(base, PackageMapSpecName)
	metaPath := filepath.Join(base, ContainerMaskName)
	vanillaSpec := readFileT(t, pmsPath)
	vanillaMeta := readFileT(t, metaPath)

	require.False(t, IsModdedMapSpec(pmsPath))
	require.False(t, IsModdedMeta(metaPath))

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())

	// The synthesized archive holds the one mod file.
	outArchive := filepath.Join(base, ModArchivesDir, CommonModArchive)
	f, err := New(outArchive, nil)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Parse())
	require.Len(t, f.Entries, 1)
	typ, name, err := f.EntryStrings(&f.Entries[0])
	require.NoError(t, err)
	require.Equal(t, "rs_streamfile", typ)
	require.Equal(t, "bar", name)
	data := f.EntryData(&f.Entries[0])
	require.Equal(t, EntryDataOK, data.Code)
	require.Equal(t, "bar content", string(data.Buffer))

	// The spec references the archive at highest priority.
	spec, err := LoadPackageMapSpec(pmsPath)
	require.NoError(t, err)
	list := spec.PrioritizedArchiveList()
	require.Equal(t, ModArchivesDir+"/"+CommonModArchive, list[0])
	require.True(t, IsModdedMapSpec(pmsPath))

	// The mask gained one all-ones entry for the archive.
	mask, err := OpenContainerMask(metaPath, nil)
	require.NoError(t, err)
	require.Len(t, mask.Entries, 2)
	added := mask.Lookup(ResourceMurmurHash([]byte(CommonModArchive)))
	require.NotNil(t, added)
	require.True(t, added.Enabled(0))
	require.True(t, IsModdedMeta(metaPath))

	// Backups preserve the vanilla bytes.
	require.Equal(t, vanillaSpec, readFileT(t, pmsPath+BackupSuffix))
	require.Equal(t, vanillaMeta, readFileT(t, metaPath+BackupSuffix))
}

func TestInjectIdempotent(t *testing.T) {
	gameDir := buildInjectGameDir(t)
	base := filepath.Join(gameDir, "base")
	modsDir := filepath.Join(gameDir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0777))
	writeZip(t, filepath.Join(modsDir, "mymod.zip"), map[string]string{
		"rs_streamfile/bar": "bar content",
	})

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())
	firstSpec := readFileT(t, filepath.Join(base, PackageMapSpecName))
	firstMeta := readFileT(t, filepath.Join(base, ContainerMaskName))
	firstArchive := readFileT(t, filepath.Join(base, ModArchivesDir, CommonModArchive))

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())
	require.Equal(t, firstSpec, readFileT(t, filepath.Join(base, PackageMapSpecName)))
	require.Equal(t, firstMeta, readFileT(t, filepath.Join(base, ContainerMaskName)))
	require.Equal(t, firstArchive, readFileT(t, filepath.Join(base, ModArchivesDir, CommonModArchive)))
}

func TestResetVanilla(t *testing.T) {
	gameDir := buildInjectGameDir(t)
	base := filepath.Join(gameDir, "base")
	modsDir := filepath.Join(gameDir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0777))
	writeZip(t, filepath.Join(modsDir, "mymod.zip"), map[string]string{
		"rs_streamfile/bar": "bar content",
	})

	pmsPath := filepath.Join(base, PackageMapSpecName)
	metaPath := filepath.Join(base, ContainerMaskName)
	vanillaSpec := readFileT(t, pmsPath)
	vanillaMeta := readFileT(t, metaPath)

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())
	require.True(t, IsModdedMapSpec(pmsPath))

	require.NoError(t, newTestInjector(gameDir, FlagResetVanilla).LoadMods())

	require.Equal(t, vanillaSpec, readFileT(t, pmsPath))
	require.Equal(t, vanillaMeta, readFileT(t, metaPath))
	require.False(t, IsModdedMapSpec(pmsPath))
	require.False(t, IsModdedMeta(metaPath))

	_, err := os.Stat(filepath.Join(base, ModArchivesDir, CommonModArchive))
	require.True(t, os.IsNotExist(err), "injected archive must be removed")
}

func TestResetThenInjectMatchesSingleInject(t *testing.T) {
	gameDir := buildInjectGameDir(t)
	base := filepath.Join(gameDir, "base")
	modsDir := filepath.Join(gameDir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0777))
	writeZip(t, filepath.Join(modsDir, "mymod.zip"), map[string]string{
		"rs_streamfile/bar": "bar content",
	})

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())
	once := readFileT(t, filepath.Join(base, ContainerMaskName))

	require.NoError(t, newTestInjector(gameDir, FlagResetVanilla).LoadMods())
	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())

	require.Equal(t, once, readFileT(t, filepath.Join(base, ContainerMaskName)))
}

func TestInjectNoKnownTypesLeavesVanilla(t *testing.T) {
	gameDir := buildInjectGameDir(t)
	base := filepath.Join(gameDir, "base")
	modsDir := filepath.Join(gameDir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0777))
	writeZip(t, filepath.Join(modsDir, "useless.zip"), map[string]string{
		"unknowntype/file": "data",
	})

	pmsPath := filepath.Join(base, PackageMapSpecName)
	metaPath := filepath.Join(base, ContainerMaskName)
	vanillaSpec := readFileT(t, pmsPath)
	vanillaMeta := readFileT(t, metaPath)

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())

	// No synthesized archive, spec and meta untouched.
	_, err := os.Stat(filepath.Join(base, ModArchivesDir, CommonModArchive))
	require.True(t, os.IsNotExist(err))
	require.Equal(t, vanillaSpec, readFileT(t, pmsPath))
	require.Equal(t, vanillaMeta, readFileT(t, metaPath))
}

func TestInjectConflictResolution(t *testing.T) {
	gameDir := buildInjectGameDir(t)
	base := filepath.Join(gameDir, "base")
	modsDir := filepath.Join(gameDir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0777))

	writeZip(t, filepath.Join(modsDir, "low.zip"), map[string]string{
		"rs_streamfile/shared": "low priority",
		"darkagesmod.toml":     "load_priority = 10\n",
	})
	writeZip(t, filepath.Join(modsDir, "high.zip"), map[string]string{
		"rs_streamfile/shared": "high priority",
		"darkagesmod.toml":     "load_priority = -10\n",
	})

	require.NoError(t, newTestInjector(gameDir, 0).LoadMods())

	f, err := New(filepath.Join(base, ModArchivesDir, CommonModArchive), nil)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Parse())
	require.Len(t, f.Entries, 1)
	data := f.EntryData(&f.Entries[0])
	require.Equal(t, "high priority", string(data.Buffer))
}

func TestLoaderCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LoaderCacheName)

	// Missing file yields defaults.
	cache := ReadLoaderCache(path)
	require.Equal(t, ^uint64(0), cache.ManifestHash)
	require.Equal(t, uint64(0), cache.PatcherSucceeded)

	cache = LoaderCache{ManifestHash: 0xDEADBEEF, PatcherSucceeded: 1}
	require.NoError(t, cache.Write(path))
	require.Equal(t, cache, ReadLoaderCache(path))

	// A size mismatch is treated as corruption.
	require.NoError(t, os.WriteFile(path, []byte("short"), 0666))
	cache = ReadLoaderCache(path)
	require.Equal(t, ^uint64(0), cache.ManifestHash)
}

// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/atlanmod/resources/log"
	cp "github.com/cespare/cp"
)

// Errors
var (
	// ErrBadGameDir is returned when the game directory is missing one of
	// the tracked files.
	ErrBadGameDir = errors.New("not a valid game directory")

	// ErrPatcherFailed aborts mod loading when the executable patcher
	// reports failure and force loading is off.
	ErrPatcherFailed = errors.New("executable patcher failed")
)

// InjectFlag is the injector's behavior bitset.
type InjectFlag uint32

// Injector flags.
const (
	FlagResetVanilla InjectFlag = 1 << iota
	FlagGameUpdated
	FlagVerbose
	FlagNoLaunch
	FlagForceLoad
	FlagNeverPatch
	FlagNoExitTimer
)

// Injection file names.
const (
	BackupSuffix     = ".backup"
	ModArchivesDir   = "modarchives"
	CommonModArchive = "common_mod.resources"
	LoaderCacheName  = "modloader_cache.bin"
	BuildManifest    = "build-manifest.bin"
	staleLooseZip    = "TEMPORARY_unzipped_modfiles.zip"
)

// manifestHashLen is how much of the build manifest feeds the game-update
// hash.
const manifestHashLen = 256

// LoaderCache is the tiny record persisted between injector runs: the hash
// of the game's build manifest and whether the executable patcher
// succeeded last time.
type LoaderCache struct {
	ManifestHash     uint64
	PatcherSucceeded uint64
}

// loaderCacheSize is the serialized size of LoaderCache.
const loaderCacheSize = 16

// ReadLoaderCache reads the cache at path. A missing or size-mismatched
// file yields defaults.
func ReadLoaderCache(path string) LoaderCache {
	cache := LoaderCache{ManifestHash: ^uint64(0)}
	data, err := os.ReadFile(path)
	if err != nil || len(data) != loaderCacheSize {
		return cache
	}
	cache.ManifestHash = binary.LittleEndian.Uint64(data)
	cache.PatcherSucceeded = binary.LittleEndian.Uint64(data[8:])
	return cache
}

// Write persists the cache to path.
func (c LoaderCache) Write(path string) error {
	var data [loaderCacheSize]byte
	binary.LittleEndian.PutUint64(data[:], c.ManifestHash)
	binary.LittleEndian.PutUint64(data[8:], c.PatcherSucceeded)
	return os.WriteFile(path, data[:], 0666)
}

// InjectOptions configures an injection run.
type InjectOptions struct {
	GameDir string
	Flags   InjectFlag

	// Directory holding the loader cache, by default the working
	// directory.
	CacheDir string

	Decompressor Decompressor
	Logger       log.Logger
}

// Injector drives end-to-end mod injection.
type Injector struct {
	opts   InjectOptions
	logger *log.Helper
	flags  InjectFlag
}

// NewInjector returns an Injector over opts.
func NewInjector(opts InjectOptions) *Injector {
	return &Injector{
		opts:   opts,
		logger: newLogHelper(opts.Logger),
		flags:  opts.Flags,
	}
}

func (in *Injector) basePath() string {
	return filepath.Join(in.opts.GameDir, "base")
}

// Run performs the full injection flow: game-update detection, the
// executable patcher, then mod loading.
func (in *Injector) Run() error {
	if fi, err := os.Stat(in.opts.GameDir); err != nil || !fi.IsDir() {
		return ErrBadGameDir
	}

	cachePath := filepath.Join(in.opts.CacheDir, LoaderCacheName)
	oldCache := ReadLoaderCache(cachePath)
	newCache := LoaderCache{}

	// The game-update check hashes the start of the build manifest and
	// compares it with the cached value.
	manifest, err := os.ReadFile(filepath.Join(in.basePath(), BuildManifest))
	if err != nil {
		return ErrBadGameDir
	}
	if len(manifest) > manifestHashLen {
		manifest = manifest[:manifestHashLen]
	}
	newCache.ManifestHash = FarmHash64(manifest)

	if newCache.ManifestHash != oldCache.ManifestHash {
		in.flags |= FlagGameUpdated
		in.logger.Info("game updated or loader cache missing, refreshing backups")
	}

	runPatcher := in.flags&FlagGameUpdated != 0 || oldCache.PatcherSucceeded == 0
	if in.flags&FlagNeverPatch != 0 {
		runPatcher = false
		newCache.PatcherSucceeded = oldCache.PatcherSucceeded
	}

	if runPatcher {
		ok, err := in.runPatcher()
		if err != nil {
			return err
		}
		if !ok {
			if in.flags&FlagForceLoad == 0 {
				// Aborting before the cache is written makes this attempt
				// look like it never happened.
				in.logger.Error("patcher failed, aborting mod loading")
				return ErrPatcherFailed
			}
			in.logger.Warn("patcher failed, proceeding due to force load")
		}
		newCache.PatcherSucceeded = 0
		if ok {
			newCache.PatcherSucceeded = 1
		}
	} else if in.flags&FlagNeverPatch == 0 {
		newCache.PatcherSucceeded = oldCache.PatcherSucceeded
	}

	if newCache != oldCache {
		if err := newCache.Write(cachePath); err != nil {
			in.logger.Warnf("cannot write loader cache: %v", err)
		}
	}

	if err := in.LoadMods(); err != nil {
		return err
	}

	in.logger.Info("mod loading complete")
	in.maybeLaunch()
	return nil
}

// runPatcher invokes the external executable patcher and interprets its
// structured exit status: the low 16 bits are the result code, the next
// two bytes count successful and failed patches. Code 6 means the
// executable was already fully patched.
func (in *Injector) runPatcher() (bool, error) {
	patcherPath := filepath.Join(in.opts.GameDir, "DarkAgesPatcher.exe")
	exePath := filepath.Join(in.opts.GameDir, "DOOMTheDarkAges.exe")

	if _, err := os.Stat(patcherPath); err != nil {
		return false, ErrBadGameDir
	}

	_ = exec.Command(patcherPath, "--update").Run()

	cmd := exec.Command(patcherPath, "--patch", exePath)
	err := cmd.Run()
	status := 0
	if err != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(err, &exitErr) {
			return false, err
		}
		status = exitErr.ExitCode()
	}

	code := uint16(status)
	successful := uint8(status >> 16)
	failed := uint8(status >> 24)
	in.logger.Infof("patcher returned code=%d successful=%d failed=%d", code, successful, failed)

	switch code {
	case 6:
		return true, nil
	case 0:
		return failed == 0, nil
	default:
		return false, nil
	}
}

// LoadMods restores or refreshes backups, reads the mods directory,
// synthesizes the mod archive, and registers it with the package map and
// container mask.
func (in *Injector) LoadMods() error {
	base := in.basePath()
	modsDir := filepath.Join(in.opts.GameDir, "mods")
	outDir := filepath.Join(base, ModArchivesDir)
	outArchive := filepath.Join(outDir, CommonModArchive)
	pmsPath := filepath.Join(base, PackageMapSpecName)
	metaPath := filepath.Join(base, ContainerMaskName)

	if err := in.manageBackups(pmsPath, metaPath); err != nil {
		return err
	}
	if err := in.cleanup(modsDir, outDir); err != nil {
		return err
	}

	if in.flags&FlagResetVanilla != 0 {
		in.logger.Info("uninstalled all mods")
		return nil
	}

	zipPaths, err := FindZipMods(modsDir)
	if err != nil {
		return err
	}
	mods := make([]*ModDef, 0, len(zipPaths)+1)
	loose, err := ReadLooseMod(modsDir, in.logger)
	if err != nil {
		return err
	}
	mods = append(mods, loose)
	for _, zp := range zipPaths {
		mod, err := ReadZipMod(zp, in.logger)
		if err != nil {
			in.logger.Warnf("cannot read mod %s: %v", zp, err)
			continue
		}
		mods = append(mods, mod)
	}

	supermod := BuildSuperMod(mods, in.logger)
	if len(supermod) == 0 {
		in.logger.Info("no mods will be loaded, previously loaded mods are removed")
		return nil
	}

	if err := BuildArchiveFile(supermod, outArchive); err != nil {
		return err
	}

	spec, err := LoadPackageMapSpec(pmsPath)
	if err != nil {
		return err
	}
	spec.InjectArchive(ModArchivesDir + "/" + CommonModArchive)
	if err := spec.Save(pmsPath); err != nil {
		return err
	}

	if err := RebuildContainerMask(metaPath, outArchive, &Options{
		Decompressor: in.opts.Decompressor,
		Logger:       in.opts.Logger,
	}); err != nil {
		return err
	}

	in.logger.Infof("injected %d mod files", len(supermod))
	return nil
}

// manageBackups creates, refreshes, or restores the .backup copies of the
// tracked files. A missing backup is created unconditionally. An existing
// backup is replaced by the current original only when the game updated
// and the original is in vanilla state; otherwise the original is restored
// from the backup, undoing any previous injection.
func (in *Injector) manageBackups(pmsPath, metaPath string) error {
	tracked := [2]string{pmsPath, metaPath}
	modded := [2]bool{IsModdedMapSpec(pmsPath), IsModdedMeta(metaPath)}

	for i, original := range tracked {
		backup := original + BackupSuffix

		if _, err := os.Stat(original); err != nil {
			in.logger.Errorf("could not find %s", original)
			return ErrBadGameDir
		}

		if _, err := os.Stat(backup); err != nil {
			if err := cp.CopyFile(backup, original); err != nil {
				return err
			}
			continue
		}

		if in.flags&FlagGameUpdated != 0 && !modded[i] {
			// The game shipped a new vanilla version of this file.
			if err := cp.CopyFile(backup, original); err != nil {
				return err
			}
		} else {
			if err := cp.CopyFile(original, backup); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanup prepares the mods and output directories and deletes leftovers
// from previous injections.
func (in *Injector) cleanup(modsDir, outDir string) error {
	if err := os.MkdirAll(modsDir, 0777); err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".resources") {
			if err := os.Remove(filepath.Join(outDir, e.Name())); err != nil {
				return err
			}
		}
	}

	// A stale loose-file zip from an interrupted run must not survive.
	stale := filepath.Join(modsDir, staleLooseZip)
	if _, err := os.Stat(stale); err == nil {
		if err := os.Remove(stale); err != nil {
			return err
		}
	}
	return nil
}

// maybeLaunch starts the game through Steam when possible.
func (in *Injector) maybeLaunch() {
	if in.flags&FlagNoLaunch != 0 {
		in.logger.Info("game will not launch due to nolaunch argument")
		return
	}
	if _, err := os.Stat(filepath.Join(in.opts.GameDir, "steam_api64.dll")); err != nil {
		in.logger.Info("could not determine how to launch the game, please launch it manually")
		return
	}
	if runtime.GOOS != "windows" {
		in.logger.Info("automatic launch is only supported on windows")
		return
	}
	in.logger.Info("launching game with steam")
	_ = exec.Command("cmd", "/C", "start", "", "steam://run/3017860//").Start()
}

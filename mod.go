// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/atlanmod/resources/log"
)

// ModManifestName is the optional per-mod manifest carried inside a mod
// zip or a loose mods tree.
const ModManifestName = "darkagesmod.toml"

// LoosePriority is the load priority of the synthetic mod formed from
// loose files. Lower numbers win, so loose files override every zipped mod
// whose load priority is above this value.
const LoosePriority = -999

// ModManifest is the decoded mod manifest.
type ModManifest struct {
	// Lower numbers win conflicts.
	LoadPriority int `toml:"load_priority"`

	// Maps a source file path inside the mod to the asset path it
	// provides.
	Aliasing map[string]string `toml:"aliasing"`
}

// ModDef is one user mod: a zip bundle, or the synthetic mod formed from
// every loose file under the mods directory.
type ModDef struct {
	Name         string
	LoadPriority int
	IsUnzipped   bool
	Files        []ModFile
}

// ModFile is one asset supplied by a mod. Data is owned by the ModDef and
// released once the synthesized archive is written.
type ModFile struct {
	Parent    *ModDef
	AssetType ResourceType

	// Path the entry will be named with inside the archive.
	AssetPath string

	// Verbatim source path, for conflict logs.
	RealPath string

	Data []byte

	// Streamdb name hash, for the types that carry one.
	DefaultHash uint64

	ResourceVersion uint32
}

// classifyModFile turns a mod-relative source path into a ModFile, or
// returns false when the path does not belong in a synthesized archive.
// The leading path segment names the resource type; manifest aliasing is
// applied before the split.
func classifyModFile(mod *ModDef, realPath string, aliases map[string]string, data []byte, logger *log.Helper) (ModFile, bool) {
	query := strings.ReplaceAll(realPath, "\\", "/")
	if alias, ok := aliases[query]; ok {
		query = alias
	}

	// Files a previous packaging pass parked under noload/ keep their
	// original bytes out of the load path.
	if strings.HasPrefix(query, "noload/") {
		return ModFile{}, false
	}

	sep := strings.IndexAny(query, "/@")
	if sep <= 0 || sep == len(query)-1 {
		logger.Warnf("skipping %s: no resource type prefix", realPath)
		return ModFile{}, false
	}

	info := lookupModType(query[:sep])
	if info == nil {
		logger.Warnf("skipping %s: unknown resource type %q", realPath, query[:sep])
		return ModFile{}, false
	}
	if !info.allowMod {
		logger.Warnf("skipping %s: resource type %q cannot be injected", realPath, info.typeString)
		return ModFile{}, false
	}

	mf := ModFile{
		Parent:    mod,
		AssetType: info.typeEnum,
		AssetPath: query[sep+1:],
		RealPath:  realPath,
		Data:      data,
	}
	if mf.AssetType.HasStreamDBHash() {
		mf.DefaultHash = FarmHash64([]byte(mf.AssetPath))
	}
	return mf, true
}

// ReadZipMod reads one zipped mod bundle.
func ReadZipMod(zipPath string, logger *log.Helper) (*ModDef, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	mod := &ModDef{Name: filepath.Base(zipPath)}

	manifest := ModManifest{}
	for _, zf := range zr.File {
		if filepath.Base(zf.Name) != ModManifestName {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			break
		}
		_, derr := toml.NewDecoder(rc).Decode(&manifest)
		rc.Close()
		if derr != nil {
			logger.Warnf("%s: bad manifest: %v", mod.Name, derr)
		}
		break
	}
	mod.LoadPriority = manifest.LoadPriority

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || filepath.Base(zf.Name) == ModManifestName {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			logger.Warnf("%s: cannot open %s: %v", mod.Name, zf.Name, err)
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			logger.Warnf("%s: cannot read %s: %v", mod.Name, zf.Name, err)
			continue
		}
		if mf, ok := classifyModFile(mod, zf.Name, manifest.Aliasing, data, logger); ok {
			mod.Files = append(mod.Files, mf)
		}
	}

	logger.Infof("read mod %s: %d files, priority %d",
		mod.Name, len(mod.Files), mod.LoadPriority)
	return mod, nil
}

// ReadLooseMod collects every non-zip file under modsDir into one
// synthetic mod with the lowest priority.
func ReadLooseMod(modsDir string, logger *log.Helper) (*ModDef, error) {
	mod := &ModDef{
		Name:         "<loose files>",
		LoadPriority: LoosePriority,
		IsUnzipped:   true,
	}

	manifest := ModManifest{}
	manifestPath := filepath.Join(modsDir, ModManifestName)
	if _, err := toml.DecodeFile(manifestPath, &manifest); err != nil && !os.IsNotExist(err) {
		logger.Warnf("loose mod: bad manifest: %v", err)
	}

	err := filepath.WalkDir(modsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".zip") || filepath.Base(path) == ModManifestName {
			return nil
		}
		rel, err := filepath.Rel(modsDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warnf("loose mod: cannot read %s: %v", path, err)
			return nil
		}
		if mf, ok := classifyModFile(mod, filepath.ToSlash(rel), manifest.Aliasing, data, logger); ok {
			mod.Files = append(mod.Files, mf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("read %d loose mod files", len(mod.Files))
	return mod, nil
}

// FindZipMods lists the zip bundles at the top of the mods directory.
func FindZipMods(modsDir string) ([]string, error) {
	entries, err := os.ReadDir(modsDir)
	if err != nil {
		return nil, err
	}
	var zips []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			zips = append(zips, filepath.Join(modsDir, e.Name()))
		}
	}
	return zips, nil
}

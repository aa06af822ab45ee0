// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atlanmod/resources/log"
)

// ErrLegacyDeclsCollision is returned when the legacy
// rs_streamfile/generated/decls tree cannot be migrated because decls/
// already exists.
var ErrLegacyDeclsCollision = errors.New("both legacy and current decls output trees exist")

// maxSafePathLen is the output path length above which a warning is
// logged.
const maxSafePathLen = 250

// ExtractOptions configures an extraction run.
type ExtractOptions struct {
	GameDir   string
	OutputDir string

	// Type strings to extract. An empty set extracts nothing.
	Types map[string]bool

	// Write a plaintext manifest per archive plus an extension audit
	// under OutputDir/manifests.
	DumpManifests bool

	Decompressor Decompressor
	Logger       log.Logger
}

// Extractor walks the prioritized archive set and writes the selected
// assets to the output tree.
type Extractor struct {
	opts    ExtractOptions
	logger  *log.Helper
	tracker *OverrideTracker
	mask    *ContainerMask

	// logicObjectDescriptor names use characters illegal on common
	// filesystems; they are emitted under numeric aliases recorded in
	// aliases.txt.
	descriptorAliases []string
	descriptorTotal   int

	audit     *ExtensionAudit
	extracted int
}

// NewExtractor returns an Extractor over opts.
func NewExtractor(opts ExtractOptions) *Extractor {
	return &Extractor{
		opts:    opts,
		logger:  newLogHelper(opts.Logger),
		tracker: NewOverrideTracker(),
		audit:   NewExtensionAudit(),
	}
}

// Run performs the extraction.
func (x *Extractor) Run() error {
	if err := x.migrateLegacyDecls(); err != nil {
		return err
	}

	archives, err := GetPrioritizedArchiveList(x.opts.GameDir)
	if err != nil {
		return err
	}

	basePath := filepath.Join(x.opts.GameDir, "base")
	mask, err := OpenContainerMask(filepath.Join(basePath, ContainerMaskName),
		&Options{Decompressor: x.opts.Decompressor, Logger: x.opts.Logger})
	if err != nil {
		x.logger.Warnf("container mask unavailable, treating all entries as enabled: %v", err)
	}
	x.mask = mask

	for _, rel := range archives {
		if err := x.extractArchive(filepath.Join(basePath, rel)); err != nil {
			// A corrupt archive is skipped; extraction continues with the
			// rest of the set.
			x.logger.Errorf("skipping archive %s: %v", rel, err)
		}
	}

	if x.opts.DumpManifests {
		auditPath := filepath.Join(x.opts.OutputDir, "manifests", "auditResults.txt")
		if err := os.MkdirAll(filepath.Dir(auditPath), 0777); err != nil {
			return err
		}
		if err := os.WriteFile(auditPath, []byte(x.audit.String()), 0666); err != nil {
			return err
		}
	}

	if x.descriptorTotal > 0 {
		aliasPath := filepath.Join(x.opts.OutputDir, "logicObjectDescriptor", "aliases.txt")
		if err := os.MkdirAll(filepath.Dir(aliasPath), 0777); err != nil {
			return err
		}
		if err := os.WriteFile(aliasPath, []byte(strings.Join(x.descriptorAliases, "")), 0666); err != nil {
			return err
		}
	}

	x.logger.Infof("extraction complete: %d files", x.extracted)
	return nil
}

// migrateLegacyDecls renames an old rs_streamfile/generated/decls output
// tree to decls before extracting into it.
func (x *Extractor) migrateLegacyDecls() error {
	legacy := filepath.Join(x.opts.OutputDir, "rs_streamfile", "generated", "decls")
	if _, err := os.Stat(legacy); err != nil {
		return nil
	}
	target := filepath.Join(x.opts.OutputDir, "decls")
	if _, err := os.Stat(target); err == nil {
		return ErrLegacyDeclsCollision
	}
	x.logger.Infof("migrating legacy output tree %s to %s", legacy, target)
	return os.Rename(legacy, target)
}

func (x *Extractor) extractArchive(path string) error {
	f, err := New(path, &Options{
		Flags:        SkipData,
		Decompressor: x.opts.Decompressor,
		Logger:       x.opts.Logger,
	})
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Parse(); err != nil {
		return err
	}

	fingerprint := ResourceMurmurHash([]byte(filepath.Base(path)))
	if err := x.mask.Validate(fingerprint, f.Header.NumResources); err != nil {
		return err
	}

	if x.opts.DumpManifests {
		manifestPath := filepath.Join(x.opts.OutputDir, "manifests",
			strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".txt")
		if err := os.MkdirAll(filepath.Dir(manifestPath), 0777); err != nil {
			return err
		}
		if err := os.WriteFile(manifestPath, []byte(f.String()), 0666); err != nil {
			return err
		}
		if err := x.audit.Add(f); err != nil {
			return err
		}
	}

	stream, err := os.Open(path)
	if err != nil {
		return err
	}
	defer stream.Close()

	count := 0
	for i := range f.Entries {
		e := &f.Entries[i]
		typ, name, err := f.EntryStrings(e)
		if err != nil {
			return err
		}
		if !x.opts.Types[typ] {
			continue
		}

		key := typ + "/" + name
		enabled := x.mask.Enabled(fingerprint, uint32(i))
		if !x.tracker.ShouldEmit(key, enabled) {
			continue
		}

		outPath := x.outputPath(typ, name)
		if len(outPath) > maxSafePathLen {
			x.logger.Warnf("output path %s exceeds the safe length limit", outPath)
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0777); err != nil {
			return err
		}

		data := f.EntryDataAt(e, stream)
		switch data.Code {
		case EntryDataOK:
		case EntryDataUnknownCompression:
			x.logger.Warnf("unknown compression mode %d on %s, writing raw bytes", e.CompMode, outPath)
		default:
			x.logger.Warnf("failed to read entry %s: %s", key, data.Code)
			continue
		}

		if err := os.WriteFile(outPath, data.Buffer, 0666); err != nil {
			return err
		}
		count++
		x.extracted++
	}

	x.logger.Infof("extracted %d files from %s", count, filepath.Base(path))
	return nil
}

// outputPath rewrites an entry's type and name into its output location.
func (x *Extractor) outputPath(typ, name string) string {
	switch {
	case typ == "rs_streamfile" && strings.HasPrefix(name, "generated/decls/"):
		// Decl stream files get their own synthetic tree.
		name = strings.TrimPrefix(name, "generated/decls/")
		return x.withExtension(filepath.Join(x.opts.OutputDir, "decls", filepath.FromSlash(name)))

	case typ == "mapentities":
		// Flatten so files cannot collide with folder names.
		name = strings.ReplaceAll(name, "/", "@")
		return x.withExtension(filepath.Join(x.opts.OutputDir, typ, name))

	case typ == "logicObjectDescriptor":
		alias := fmt.Sprintf("logicObjectDescriptor_%d.bin", x.descriptorTotal)
		x.descriptorTotal++
		x.descriptorAliases = append(x.descriptorAliases,
			fmt.Sprintf("%q = \"logicObjectDescriptor/%s\"\n", alias, name))
		return filepath.Join(x.opts.OutputDir, typ, alias)

	default:
		return x.withExtension(filepath.Join(x.opts.OutputDir, typ, filepath.FromSlash(name)))
	}
}

// withExtension appends .bin to extension-less outputs.
func (x *Extractor) withExtension(path string) string {
	if filepath.Ext(path) == "" {
		path += ".bin"
	}
	return path
}

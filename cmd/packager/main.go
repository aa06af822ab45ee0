// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// The packager bundles a mods working tree into a redistributable zip.
package main

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	resources "github.com/atlanmod/resources"
	"github.com/atlanmod/resources/log"
)

const (
	logPath    = "packager_log.txt"
	outputName = "AtlanPackage.zip"
)

func run(logger log.Logger) error {
	helper := log.NewHelper(logger)
	helper.Info("atlan mod packager")

	modsDir, err := filepath.Abs("./mods")
	if err != nil {
		return err
	}
	if fi, err := os.Stat(modsDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("could not find mods folder %s", modsDir)
	}

	// Aliasing rules resolve each file's asset path for the noload/ check.
	// Files keep their on-disk names in the zip; the manifest is packaged
	// with them and the loader applies its aliasing.
	manifest := resources.ModManifest{}
	manifestPath := filepath.Join(modsDir, resources.ModManifestName)
	if _, err := toml.DecodeFile(manifestPath, &manifest); err != nil && !os.IsNotExist(err) {
		helper.Warnf("failed to read %s: %v", resources.ModManifestName, err)
	}
	if len(manifest.Aliasing) > 0 {
		helper.Infof("found %d alias definitions", len(manifest.Aliasing))
	}

	out, err := os.Create(outputName)
	if err != nil {
		return err
	}
	defer out.Close()
	zw := zip.NewWriter(out)

	err = filepath.WalkDir(modsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.EqualFold(filepath.Ext(path), ".zip") {
			return nil
		}

		rel, err := filepath.Rel(modsDir, path)
		if err != nil {
			return err
		}
		zippedName := filepath.ToSlash(rel)
		helper.Infof("packaging %s", zippedName)

		query := zippedName
		if alias, ok := manifest.Aliasing[query]; ok {
			query = alias
		}

		// Raw files parked under noload/ by a previous packaging pass must
		// not override the real files.
		if strings.HasPrefix(query, "noload/") || query == "noload" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		w, err := zw.Create(zippedName)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	if err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	helper.Infof("wrote %s", outputName)
	return nil
}

func main() {
	logFile, err := os.Create(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", logPath, err)
		os.Exit(1)
	}
	defer logFile.Close()

	logger := log.NewStdLogger(io.MultiWriter(os.Stdout, logFile))
	helper := log.NewHelper(logger)

	defer func() {
		if r := recover(); r != nil {
			helper.Errorf("an unexpected crash has occurred, the packaged zip may be incomplete: %v", r)
		}
		fmt.Printf("Output written to %s\n", logPath)
		time.Sleep(2 * time.Second)
	}()

	if err := run(logger); err != nil {
		helper.Errorf("fatal error: %v", err)
	}
}

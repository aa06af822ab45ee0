// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// The extractor dumps the game's assets into an editable tree, driven by
// extractor_config.toml.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	resources "github.com/atlanmod/resources"
	"github.com/atlanmod/resources/log"
)

const (
	configPath = "extractor_config.toml"
	logPath    = "extractor_log.txt"
)

type config struct {
	Core struct {
		InputFolder       string `toml:"input_folder"`
		OutputFolder      string `toml:"output_folder"`
		RunExtractor      bool   `toml:"run_extractor"`
		RunDeserializer   bool   `toml:"run_deserializer"`
		RunAudioExtractor bool   `toml:"run_audio_extractor"`
	} `toml:"core"`

	Extractor struct {
		ResourceTypes []string `toml:"resource_types"`

		// Path-length guard for the output tree; 0 disables it.
		MaxOutputDirLen int `toml:"max_output_dir_len"`

		DumpManifests bool `toml:"dump_manifests"`
	} `toml:"extractor"`

	AudioExtractor struct {
		AudioTypes  []string `toml:"audio_types"`
		MaxThreads  int      `toml:"max_threads"`
		DecoderPath string   `toml:"decoder_path"`
	} `toml:"audio_extractor"`

	Deserializer struct {
		DeserializeEntityDefs bool `toml:"deserialize_entity_defs"`
		DeserializeLogicDecls bool `toml:"deserialize_logic_decls"`
		DeserializeLevelFiles bool `toml:"deserialize_level_files"`
		RemoveBinaryFiles     bool `toml:"remove_binary_files"`
		AddIndentation        bool `toml:"add_indentation"`
		IncludeOriginals      bool `toml:"include_originals"`
	} `toml:"deserializer"`

	Aliasing map[string]string `toml:"aliasing"`
}

func run(logger log.Logger) error {
	helper := log.NewHelper(logger)
	helper.Info("atlan consolidated resource extractor")

	cfg := config{}
	cfg.Core.RunExtractor = true
	cfg.Core.RunDeserializer = true
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	for _, dir := range []string{cfg.Core.InputFolder, cfg.Core.OutputFolder} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return fmt.Errorf("%s is not a valid directory, did you set your input/output folders in %s?", dir, configPath)
		}
	}
	if max := cfg.Extractor.MaxOutputDirLen; max > 0 && len(cfg.Core.OutputFolder) >= max {
		return fmt.Errorf("output directory %s exceeds the configured %d character limit", cfg.Core.OutputFolder, max)
	}

	outputDir := filepath.Join(cfg.Core.OutputFolder, "atlan")
	if err := os.MkdirAll(outputDir, 0777); err != nil {
		return err
	}

	decomp, err := resources.NewOodleDecompressor()
	if err != nil {
		return err
	}

	if cfg.Core.RunExtractor {
		helper.Info("performing resource extraction")
		types := make(map[string]bool, len(cfg.Extractor.ResourceTypes))
		for _, t := range cfg.Extractor.ResourceTypes {
			types[t] = true
		}
		helper.Infof("found %d resource types", len(types))

		x := resources.NewExtractor(resources.ExtractOptions{
			GameDir:       cfg.Core.InputFolder,
			OutputDir:     outputDir,
			Types:         types,
			DumpManifests: cfg.Extractor.DumpManifests,
			Decompressor:  decomp,
			Logger:        logger,
		})
		if err := x.Run(); err != nil {
			return err
		}
	} else {
		helper.Info("skipping resource extraction")
	}

	if cfg.Core.RunAudioExtractor {
		helper.Info("performing audio extraction")
		types := make(map[string]bool, len(cfg.AudioExtractor.AudioTypes))
		for _, t := range cfg.AudioExtractor.AudioTypes {
			types[t] = true
		}

		// The audio mask lives at the tail of soundmetadata.bin; a missing
		// or unparseable mask falls back to everything enabled.
		mask, err := resources.LoadSndContainerMask(
			filepath.Join(cfg.Core.InputFolder, "base", "sound", "soundbanks", "pc"))
		if err != nil {
			helper.Warnf("audio container mask unavailable, treating all samples as enabled: %v", err)
		}
		x := resources.NewAudioExtractor(resources.AudioExtractOptions{
			GameDir:     cfg.Core.InputFolder,
			OutputDir:   outputDir,
			Types:       types,
			MaxThreads:  cfg.AudioExtractor.MaxThreads,
			DecoderPath: cfg.AudioExtractor.DecoderPath,
			Logger:      logger,
		}, mask)
		if err := x.Run(); err != nil {
			return err
		}
	}

	if cfg.Core.RunDeserializer {
		helper.Info("deserialization is handled by the external deserializer, skipping")
	}
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

	// One boundary translates unexpected failures into a logged message so
	// partial output is never mistaken for success.
	defer func() {
		if r := recover(); r != nil {
			helper.Errorf("an unexpected crash has occurred, extracted files may be incomplete: %v", r)
		}
		fmt.Printf("Output written to %s\n", logPath)
		time.Sleep(2 * time.Second)
	}()

	if err := run(logger); err != nil {
		helper.Errorf("fatal error: %v", err)
	}
}

// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/atlanmod/resources/log"
	"golang.org/x/sync/errgroup"
)

// ThreadMax caps the audio worker pool regardless of configuration.
const ThreadMax = 16

// entriesPerWorker is the batch size the pool sizing aims for.
const entriesPerWorker = 512

// AudioExtractOptions configures an audio extraction run.
type AudioExtractOptions struct {
	GameDir   string
	OutputDir string

	// Audio archive stems to extract ("music", "sfx", ...). Empty extracts
	// everything.
	Types map[string]bool

	// Worker pool cap, clamped to 1..ThreadMax.
	MaxThreads int

	// External decoder invoked per sample as:
	// decoder -o <out.wav> <encoded>.
	DecoderPath string

	Logger log.Logger
}

// AudioExtractor walks the audio archives referenced by the audio
// container mask and decodes every enabled sample.
type AudioExtractor struct {
	opts    AudioExtractOptions
	logger  *log.Helper
	tracker *OverrideTracker
	mask    *SndContainerMask

	// Samples decoded so far, updated by workers at batch boundaries.
	progress atomic.Int64

	duplicates atomic.Int64
}

// NewAudioExtractor returns an AudioExtractor over opts.
func NewAudioExtractor(opts AudioExtractOptions, mask *SndContainerMask) *AudioExtractor {
	return &AudioExtractor{
		opts:    opts,
		logger:  newLogHelper(opts.Logger),
		tracker: NewOverrideTracker(),
		mask:    mask,
	}
}

// Progress returns the number of samples decoded so far.
func (x *AudioExtractor) Progress() int64 {
	return x.progress.Load()
}

// Run extracts every selected archive. Archives are walked in reverse
// priority order (base archive before its patches), so enabled
// higher-priority copies overwrite earlier emissions.
func (x *AudioExtractor) Run() error {
	soundDir := filepath.Join(x.opts.GameDir, "base", "sound", "soundbanks", "pc")
	entries, err := os.ReadDir(soundDir)
	if err != nil {
		return err
	}

	var archives []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".snd") {
			continue
		}
		if len(x.opts.Types) > 0 && !x.opts.Types[archiveStem(e.Name())] {
			continue
		}
		archives = append(archives, e.Name())
	}

	// Base archives sort before their _patch_ siblings, which is exactly
	// reverse priority order.
	sort.Strings(archives)

	for _, name := range archives {
		if err := x.extractArchive(soundDir, name); err != nil {
			x.logger.Errorf("skipping audio archive %s: %v", name, err)
		}
	}
	if d := x.duplicates.Load(); d > 0 {
		x.logger.Infof("%d duplicate sample usages", d)
	}
	return nil
}

// archiveStem strips the extension and any _patch_<n> suffix.
func archiveStem(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.Index(stem, "_patch_"); i >= 0 {
		stem = stem[:i]
	}
	return stem
}

func (x *AudioExtractor) extractArchive(soundDir, name string) error {
	snd, err := ReadSndFile(filepath.Join(soundDir, name))
	if err != nil {
		return err
	}

	outDir := filepath.Join(x.opts.OutputDir, "sound", archiveStem(name))
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return err
	}

	workers := x.opts.MaxThreads
	if workers < 1 {
		workers = 1
	}
	if workers > ThreadMax {
		workers = ThreadMax
	}
	if byLoad := (len(snd.Entries) + entriesPerWorker - 1) / entriesPerWorker; byLoad < workers {
		workers = byLoad
	}
	if workers < 1 {
		workers = 1
	}

	x.logger.Infof("extracting %d samples from %s with %d workers",
		len(snd.Entries), name, workers)

	// Each worker takes a contiguous slice of the entry range and opens
	// its own file handle; only the tracker map and the progress counter
	// are shared.
	var g errgroup.Group
	chunk := (len(snd.Entries) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(snd.Entries) {
			hi = len(snd.Entries)
		}
		if lo >= hi {
			break
		}
		worker := w
		g.Go(func() error {
			return x.extractRange(snd, name, outDir, worker, lo, hi)
		})
	}
	return g.Wait()
}

func (x *AudioExtractor) extractRange(snd *SndFile, archiveName, outDir string, worker, lo, hi int) error {
	stream, err := os.Open(snd.Path)
	if err != nil {
		return err
	}
	defer stream.Close()

	tmpPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("atlan_audio_%d_%s.tmp", worker, archiveStem(archiveName)))
	defer os.Remove(tmpPath)

	done := int64(0)
	for i := lo; i < hi; i++ {
		e := &snd.Entries[i]
		key := strconv.FormatUint(uint64(e.ID), 10)
		if x.tracker.Seen(key) {
			// One sample id referenced by multiple banks or patches.
			x.duplicates.Add(1)
			x.logger.Debugf("sample %d in %s was already emitted elsewhere", e.ID, archiveName)
		}
		enabled := x.mask.Enabled(archiveName, uint32(i))
		if !x.tracker.ShouldEmitReverse(key, enabled) {
			continue
		}

		data, err := snd.SampleData(e, stream)
		if err != nil {
			x.logger.Warnf("sample %d in %s: %v", e.ID, archiveName, err)
			continue
		}
		if err := os.WriteFile(tmpPath, data, 0666); err != nil {
			return err
		}

		outPath := filepath.Join(outDir, snd.SampleName(e, true))
		cmd := exec.Command(x.opts.DecoderPath, "-o", outPath, tmpPath)
		if out, err := cmd.CombinedOutput(); err != nil {
			x.logger.Warnf("decoder failed on sample %d: %v: %s", e.ID, err, out)
			continue
		}

		if done++; done%32 == 0 {
			x.progress.Add(32)
		}
	}
	x.progress.Add(done % 32)
	return nil
}

// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

import (
	"errors"

	oodle "github.com/new-world-tools/go-oodle"
)

// Errors
var (
	// ErrDecompressorMissing is returned when the native decompression
	// library cannot be found or downloaded.
	ErrDecompressorMissing = errors.New("oodle library not found and download failed")

	// ErrDecompress is returned when the native library reports a
	// decompression failure.
	ErrDecompress = errors.New("oodle decompression failed")
)

// Decompressor decompresses entry payloads stored with CompMode 2.
// Implementations must be safe for concurrent use.
type Decompressor interface {
	// Decompress inflates src into a buffer of exactly uncompressedSize
	// bytes.
	Decompress(src []byte, uncompressedSize int64) ([]byte, error)

	// Compress deflates src.
	Compress(src []byte) ([]byte, error)
}

// OodleDecompressor wraps the native Oodle library the engine compresses
// archives with.
type OodleDecompressor struct{}

// NewOodleDecompressor locates the native Oodle library, downloading it if
// absent, and returns a Decompressor backed by it.
func NewOodleDecompressor() (*OodleDecompressor, error) {
	if !oodle.IsDllExist() {
		if err := oodle.Download(); err != nil {
			return nil, ErrDecompressorMissing
		}
	}
	return &OodleDecompressor{}, nil
}

// Decompress implements Decompressor.
func (d *OodleDecompressor) Decompress(src []byte, uncompressedSize int64) ([]byte, error) {
	out, err := oodle.Decompress(src, uncompressedSize)
	if err != nil {
		return nil, ErrDecompress
	}
	return out, nil
}

// Compress implements Decompressor.
func (d *OodleDecompressor) Compress(src []byte) ([]byte, error) {
	return oodle.Compress(src, oodle.AlgoKraken, oodle.CompressionLevelOptimal3)
}

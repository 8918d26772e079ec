// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/warden/lib/atomicfile"
)

// Compression is how a bundled file is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// DetectCompression infers compression from the file suffix.
func DetectCompression(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(path, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Locate returns the bundled file for path: path itself if it exists,
// else path+".zst" or path+".lz4". The result wraps os.ErrNotExist
// when none exists.
func Locate(path string) (string, error) {
	for _, candidate := range []string{path, path + ".zst", path + ".lz4"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("bundled file %s: %w", path, os.ErrNotExist)
}

// Open returns a reader over the decompressed contents of source.
func Open(source string) (io.ReadCloser, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	switch DetectCompression(source) {
	case CompressionZstd:
		decoder, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zstd reader for %s: %w", source, err)
		}
		return &decompressor{Reader: decoder, close: func() error {
			decoder.Close()
			return file.Close()
		}}, nil
	case CompressionLZ4:
		return &decompressor{Reader: lz4.NewReader(file), close: file.Close}, nil
	default:
		return file, nil
	}
}

type decompressor struct {
	io.Reader
	close func() error
}

func (d *decompressor) Close() error { return d.close() }

// Stage decompresses source into destination with mode and returns the
// digest of what was written. destination is replaced atomically: a
// failed stage leaves any previous file untouched. The parent
// directory is created if missing.
func Stage(source, destination string, mode os.FileMode) (Digest, error) {
	reader, err := Open(source)
	if err != nil {
		return Digest{}, fmt.Errorf("opening bundled %s: %w", source, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return Digest{}, fmt.Errorf("creating %s: %w", filepath.Dir(destination), err)
	}

	hasher := newHasher()
	err = atomicfile.Write(destination, mode, func(w io.Writer) error {
		_, err := io.Copy(io.MultiWriter(w, hasher), reader)
		return err
	})
	if err != nil {
		return Digest{}, fmt.Errorf("staging %s to %s: %w", source, destination, err)
	}
	return sum(hasher), nil
}

// BundledDigest returns the digest of source's decompressed contents.
func BundledDigest(source string) (Digest, error) {
	reader, err := Open(source)
	if err != nil {
		return Digest{}, fmt.Errorf("opening bundled %s: %w", source, err)
	}
	defer reader.Close()
	digest, err := DigestReader(reader)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing bundled %s: %w", source, err)
	}
	return digest, nil
}

// Matches reports whether installed holds exactly the decompressed
// contents of source. A missing installed file is a mismatch, not an
// error.
func Matches(source, installed string) (bool, error) {
	installedDigest, err := DigestFile(installed)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	bundledDigest, err := BundledDigest(source)
	if err != nil {
		return false, err
	}
	return installedDigest == bundledDigest, nil
}

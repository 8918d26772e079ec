// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte keyed BLAKE3 hash of an executable's bytes.
type Digest [32]byte

// binaryDomainKey is ASCII "warden.artifact.binary" zero-padded to 32
// bytes. Changing it invalidates every recorded digest.
var binaryDomainKey = [32]byte{
	'w', 'a', 'r', 'd', 'e', 'n', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c', 't', '.',
	'b', 'i', 'n', 'a', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func newHasher() hash.Hash {
	hasher, err := blake3.NewKeyed(binaryDomainKey[:])
	if err != nil {
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func sum(hasher hash.Hash) Digest {
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// DigestBytes hashes data.
func DigestBytes(data []byte) Digest {
	hasher := newHasher()
	hasher.Write(data)
	return sum(hasher)
}

// DigestReader hashes everything r yields.
func DigestReader(r io.Reader) (Digest, error) {
	hasher := newHasher()
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, err
	}
	return sum(hasher), nil
}

// DigestFile hashes the file at path as stored, without decompressing.
func DigestFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()
	digest, err := DigestReader(file)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return digest, nil
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, for log lines.
func (d Digest) Short() string {
	return d.String()[:12]
}

// ParseDigest parses the String form.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}

package phofmit

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// hashFactories lists the supported checksum algorithms by name.
var hashFactories = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
	"crc32":  func() hash.Hash { return crc32.NewIEEE() },
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes
		return h
	},
	"xxh64": func() hash.Hash { return xxhash.New() },
}

// Algorithms returns the names of the supported checksum algorithms, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(hashFactories))
	for name := range hashFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedAlgorithm reports whether algo can be used for checksums.
func SupportedAlgorithm(algo string) bool {
	_, ok := hashFactories[algo]
	return ok
}

// ExtractChecksum hashes at most windowSize bytes from the start of the file
// at path. The returned Checksum records both the requested window and the
// number of bytes actually read, which is smaller only for short files.
func ExtractChecksum(path string, windowSize int64, algo string) (Checksum, error) {
	newHash, ok := hashFactories[algo]
	if !ok {
		return Checksum{}, fmt.Errorf("unsupported checksum algorithm: %s", algo)
	}
	if windowSize < 0 {
		return Checksum{}, fmt.Errorf("negative checksum window: %d", windowSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return Checksum{}, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := newHash()
	n, err := io.Copy(h, io.LimitReader(f, windowSize))
	if err != nil {
		return Checksum{}, fmt.Errorf("reading file: %w", err)
	}

	return Checksum{
		Start:        0,
		Length:       windowSize,
		ActualLength: n,
		Algo:         algo,
		Value:        hex.EncodeToString(h.Sum(nil)),
	}, nil
}

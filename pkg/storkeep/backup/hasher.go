package backup

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Hasher computes file checksums for generation metadata and verification.
type Hasher interface {
	// Sum returns the hex-encoded digest of the file at path.
	Sum(path string) (string, error)

	// Name is the algorithm name recorded in metadata.
	Name() string
}

// NewHasher returns the hasher for the configured algorithm.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "sha256":
		return SHA256Hasher{}, nil
	case "sha512":
		return SHA512Hasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// SHA256Hasher hashes files with SHA-256.
type SHA256Hasher struct{}

// Name implements Hasher.
func (SHA256Hasher) Name() string { return "sha256" }

// Sum implements Hasher.
func (SHA256Hasher) Sum(path string) (string, error) {
	return hashFile(sha256.New(), path)
}

// SHA512Hasher hashes files with SHA-512.
type SHA512Hasher struct{}

// Name implements Hasher.
func (SHA512Hasher) Name() string { return "sha512" }

// Sum implements Hasher.
func (SHA512Hasher) Sum(path string) (string, error) {
	return hashFile(sha512.New(), path)
}

func hashFile(h hash.Hash, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FakeHasher is a func-field test double.
type FakeHasher struct {
	SumFunc  func(path string) (string, error)
	NameFunc func() string
}

// Sum implements Hasher.
func (f *FakeHasher) Sum(path string) (string, error) {
	if f.SumFunc != nil {
		return f.SumFunc(path)
	}
	return "fake", nil
}

// Name implements Hasher.
func (f *FakeHasher) Name() string {
	if f.NameFunc != nil {
		return f.NameFunc()
	}
	return "fake"
}

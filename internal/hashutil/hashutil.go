// Package hashutil centralizes the handful of hash computations every
// stage needs, so the normalization rule behind invariant §8.5 (hash
// normalization) has exactly one implementation.
package hashutil

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// PathHash is shared_files.path_hash = SHA-1(path).
func PathHash(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// NormalizeInnerPath converts backslashes to forward slashes and strips a
// leading slash, per §4.F step 6 and the invariant in §8.5.
func NormalizeInnerPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "/")
}

// SHA256Hex hashes a normalized inner path (or any other string) to hex,
// used for zip_inner_path_sha256 and xml_sha256-from-bytes callers that
// already have the normalized string in hand.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SHA256Bytes hashes raw content (an XML member's bytes) to hex.
func SHA256Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256File streams path in >=1MiB chunks per §4.B, never holding the
// whole file in memory.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

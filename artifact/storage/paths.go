package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BaSui01/artifactflow/types"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^\w\-.]`)
	validID         = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// sanitizeFilename replaces anything outside [A-Za-z0-9_.-] and caps the length.
func sanitizeFilename(name string, maxLen int) string {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	safe = strings.TrimLeft(safe, ".")
	if safe == "" {
		safe = "payload"
	}
	if maxLen > 0 && len(safe) > maxLen {
		safe = safe[:maxLen]
	}
	return safe
}

// checkID rejects ids that could be used to build paths outside their directory.
func checkID(id string) error {
	if !validID.MatchString(id) {
		return types.PathSecurity("invalid identifier %q", id)
	}
	return nil
}

// within reports whether path lies inside root. Both must be absolute and clean.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// confine resolves rel against root and fails if the result escapes root.
func (s *FileStore) confine(rel string) (string, error) {
	if rel == "" {
		return "", types.Validation("empty storage path")
	}
	if filepath.IsAbs(rel) {
		return "", types.PathSecurity("storage path %q must be relative", rel)
	}
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	if !within(s.root, abs) || abs == s.root {
		return "", types.PathSecurity("storage path %q escapes storage root", rel)
	}
	return abs, nil
}

// relative converts an absolute path under root into the slash-separated form
// recorded in metadata documents.
func (s *FileStore) relative(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", types.IO(err, "relativize %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// checksumFile computes the SHA-256 of a file in streaming fashion.
func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ChecksumBytes returns the hex SHA-256 of data.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

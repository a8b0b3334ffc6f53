// Package keypath translates between logical keys and filesystem paths.
//
// Logical keys are forward-slash separated and relative to a store root.
// Translation is pure (no I/O) and validating: a key can never name a path
// outside the root, regardless of platform separators.
package keypath

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that cannot map inside the root.
var ErrInvalidKey = errors.New("invalid key")

// Clean normalizes a logical key: strips leading slashes, collapses dot
// segments, and rejects keys that would climb above the root.
func Clean(key string) (string, error) {
	k := strings.TrimLeft(key, "/")
	if k == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	k = path.Clean(k)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("%w: %q escapes the root", ErrInvalidKey, key)
	}
	return k, nil
}

// ToPath maps a logical key to the filesystem path under root, converting
// forward slashes to the platform separator. The key is validated first.
func ToPath(root, key string) (string, error) {
	k, err := Clean(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(k)), nil
}

// ToKey is the inverse of ToPath: it strips the root prefix and converts
// platform separators back to forward slashes. Paths outside root are
// rejected.
func ToKey(root, fspath string) (string, error) {
	rel, err := filepath.Rel(root, fspath)
	if err != nil {
		return "", fmt.Errorf("%w: %q not under root %q", ErrInvalidKey, fspath, root)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q not under root %q", ErrInvalidKey, fspath, root)
	}
	return filepath.ToSlash(rel), nil
}

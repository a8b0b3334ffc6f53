package fs

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/filekv/filekv/internal/logger"
	"github.com/filekv/filekv/pkg/datainfo"
	"github.com/filekv/filekv/pkg/keypath"
)

// walk enumerates the keys intersecting pat in a single filesystem pass.
// The walk is restricted to the subtree named by the pattern's literal
// prefix, skips the index directory, strips the conflict suffix when
// reconstructing keys, and skips non-UTF-8 names with a diagnostic.
// With FollowLinks set it descends into symlinked directories, tracking
// resolved paths to break cycles.
func (s *FileStore) walk(ctx context.Context, pat string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.closed.Load() {
			return
		}

		base := s.root
		if prefix := s.matcher.LiteralPrefix(pat); prefix != "" {
			p, err := keypath.ToPath(s.root, prefix)
			if err != nil {
				return
			}
			fi, statErr := os.Lstat(p)
			if statErr == nil && fi.Mode()&os.ModeSymlink != 0 && s.followLinks {
				fi, statErr = os.Stat(p)
			}
			// A wildcard-free pattern can name a single file outright;
			// resolve it directly instead of walking.
			if statErr != nil || !fi.IsDir() {
				if _, _, _, err := s.resolveForRead(prefix); err == nil && s.matcher.Intersects(prefix, pat) {
					yield(prefix)
				}
				return
			}
			// The prefix names a directory; its conflict-renamed sibling
			// still carries the prefix itself as a key.
			if _, metaKey, _, err := s.resolveForRead(prefix); err == nil &&
				strings.HasSuffix(metaKey, ConflictSuffix) &&
				s.matcher.Intersects(prefix, pat) {
				if !yield(prefix) {
					return
				}
			}
			base = p
		}

		var visited map[string]bool
		if s.followLinks {
			visited = make(map[string]bool)
		}
		s.walkDir(ctx, base, pat, visited, yield)
	}
}

// walkDir is a depth-first directory walk. Unlike filepath.WalkDir it
// descends into symlinked directories when the store follows links,
// which is why it exists. Returns false once yield stops the walk.
func (s *FileStore) walkDir(ctx context.Context, dir, pat string, visited map[string]bool, yield func(string) bool) bool {
	if visited != nil {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			logger.Warn("enumeration: skipping unresolvable directory", "path", dir, "error", err)
			return true
		}
		if visited[resolved] {
			return true
		}
		visited[resolved] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("enumeration: skipping unreadable directory", "path", dir, "error", err)
		return true
	}

	for _, d := range entries {
		if ctx.Err() != nil {
			return false
		}
		path := filepath.Join(dir, d.Name())

		if d.IsDir() {
			if d.Name() == datainfo.DBDirName {
				continue
			}
			if !s.walkDir(ctx, path, pat, visited, yield) {
				return false
			}
			continue
		}

		if d.Type()&os.ModeSymlink != 0 {
			if !s.followLinks {
				continue
			}
			fi, statErr := os.Stat(path)
			if statErr != nil {
				logger.Warn("enumeration: skipping dangling symlink", "path", path, "error", statErr)
				continue
			}
			if fi.IsDir() {
				if !s.walkDir(ctx, path, pat, visited, yield) {
					return false
				}
				continue
			}
		} else if !d.Type().IsRegular() {
			continue
		}

		key, kerr := keypath.ToKey(s.root, path)
		if kerr != nil {
			continue
		}
		key = strings.TrimSuffix(key, ConflictSuffix)
		if !utf8.ValidString(key) {
			logger.Warn("enumeration: skipping non-UTF-8 filename", "path", path)
			continue
		}
		if !s.followLinks && !s.ancestorsContained(path) {
			continue
		}
		if !s.matcher.Intersects(key, pat) {
			continue
		}
		if !yield(key) {
			return false
		}
	}
	return true
}

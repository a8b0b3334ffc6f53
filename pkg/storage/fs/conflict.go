package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/filekv/filekv/internal/logger"
	"github.com/filekv/filekv/pkg/keypath"
	"github.com/filekv/filekv/pkg/storage"
)

// resolveForWrite computes where a put for ckey must land. Two shapes of
// file/directory conflict exist:
//
//   - an ancestor of the key is a plain file ("a" holds content, put of
//     "a/b" arrives): the ancestor is renamed to its conflict-suffixed
//     name, its index record follows, and the directory chain can then
//     be created;
//   - the key's own path is a directory ("a/b" exists, put of "a"
//     arrives): content lands on the suffixed name instead.
//
// It returns the physical path to write and the index key the record
// belongs under.
func (s *FileStore) resolveForWrite(ctx context.Context, ckey string) (string, string, error) {
	direct, err := keypath.ToPath(s.root, ckey)
	if err != nil {
		return "", "", &storage.StoreError{Code: storage.ErrInvalidKey, Message: "invalid key", Path: ckey, Cause: err}
	}

	if err := s.displaceFileAncestors(ctx, ckey); err != nil {
		return "", "", err
	}

	fi, statErr := os.Lstat(direct)
	if statErr == nil && fi.IsDir() {
		return direct + ConflictSuffix, ckey + ConflictSuffix, nil
	}
	if statErr != nil {
		// The direct file is absent; if an earlier conflict left the
		// suffixed file behind, keep writing there so the key has a
		// single physical home.
		if sfi, err := os.Lstat(direct + ConflictSuffix); err == nil && !sfi.IsDir() {
			return direct + ConflictSuffix, ckey + ConflictSuffix, nil
		}
	}
	return direct, ckey, nil
}

// displaceFileAncestors walks the key's ancestors root-down and renames
// the first one that is a plain file to its conflict-suffixed name,
// moving (or synthesizing) its index record. At most one ancestor can be
// a file: anything below it cannot exist yet.
func (s *FileStore) displaceFileAncestors(ctx context.Context, ckey string) error {
	segs := strings.Split(ckey, "/")
	if len(segs) < 2 {
		return nil
	}

	for i := 1; i < len(segs); i++ {
		ancestorKey := strings.Join(segs[:i], "/")
		path, err := keypath.ToPath(s.root, ancestorKey)
		if err != nil {
			return &storage.StoreError{Code: storage.ErrInvalidKey, Message: "invalid key", Path: ancestorKey, Cause: err}
		}

		fi, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return storage.NewIOError("failed to inspect ancestor", path, err)
		}
		if fi.IsDir() {
			continue
		}

		renamed := path + ConflictSuffix
		if err := os.Rename(path, renamed); err != nil {
			return storage.NewIOError("failed to rename conflicting file", path, err)
		}
		logger.Debug("displaced conflicting file",
			"key", ancestorKey, "to", filepath.Base(renamed))

		if err := s.moveRecord(ctx, ancestorKey, renamed, fi); err != nil {
			return err
		}
		return nil
	}
	return nil
}

// moveRecord follows a conflict rename in the index: the record moves to
// the suffixed key, or is synthesized from the file itself when the
// original had none.
func (s *FileStore) moveRecord(ctx context.Context, fromKey, renamedPath string, fi os.FileInfo) error {
	err := s.meta.Rename(ctx, fromKey, fromKey+ConflictSuffix)
	if err == nil {
		return nil
	}
	if !storage.IsNotFound(err) {
		return err
	}

	// No record existed; fabricate one from the file so the displaced
	// key keeps its ordering timestamp and encoding.
	encoding := storage.DefaultEncoding
	if s.keepMime {
		if data, rdErr := os.ReadFile(renamedPath); rdErr == nil {
			encoding = s.guessEncoding(data)
		}
	}
	return s.meta.Put(ctx, fromKey+ConflictSuffix, encoding, fallbackTimestamp(fi))
}

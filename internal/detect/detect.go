// Package detect implements the Change Detector (spec.md §4.2): a walk of the source
// tree that classifies every file as new, modified, or (by omission) deleted, using a
// stable content hash compared against what the Index Store already has on record.
//
// The detector intentionally keeps no cache of its own beyond the store's stored
// hashes — spec.md §6 calls for "No other on-disk state" beyond the database file, so
// there is no manifest.json sidecar the way the teacher's FileCache kept one.
package detect

import (
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/highwayhash"

	"codeindex/internal/logging"
)

// ChangeKind classifies one file relative to the store's prior snapshot.
type ChangeKind string

const (
	ChangeNew      ChangeKind = "new"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChange describes one file transition the sync engine must act on.
type FileChange struct {
	Path     string // workspace-relative
	AbsPath  string
	Kind     ChangeKind
	Language string
	Hash     string // empty for ChangeDeleted
	Size     int64
	MTime    time.Time
}

// KnownFile is the store's prior record of one tracked file, used as the comparison
// baseline.
type KnownFile struct {
	Path string
	Hash string
}

// Options controls the walk.
type Options struct {
	IgnorePatterns  []string          // substrings matched against relative paths (no glob syntax)
	LanguageByExt   map[string]string // file extension (with dot) -> language id
}

// hashKey is a fixed 32-byte key required by highwayhash. It need not be secret: the
// hash is used for change detection, not authentication, so a constant key keeps the
// function stable across runs as spec.md §4.2 requires ("the same function must be
// used everywhere").
var hashKey = []byte("codeindex-content-hash-key-00000")

// HashContent computes the stable 128-bit content hash spec.md §4.2 requires.
func HashContent(content []byte) (string, error) {
	h, err := highwayhash.New128(hashKey)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(content); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashFile streams a file's content through the same hash function HashContent uses.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h, err := highwayhash.New128(hashKey)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Detect walks root and classifies files against known, the store's current snapshot.
// Deleted files (known but not revisited) are appended last. The result is sorted by
// path for deterministic downstream processing.
func Detect(root string, known []KnownFile, opts Options) ([]FileChange, error) {
	timer := logging.StartTimer(logging.CategoryDetect, "Detect")
	defer timer.Stop()

	knownByPath := make(map[string]string, len(known))
	for _, k := range known {
		knownByPath[k.Path] = k.Hash
	}
	visited := make(map[string]bool, len(known))

	var changes []FileChange

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)

		if d.IsDir() {
			if isIgnored(relSlash, d.Name(), opts.IgnorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if isIgnored(relSlash, d.Name(), opts.IgnorePatterns) {
			return nil
		}

		ext := filepath.Ext(d.Name())
		lang, known := opts.LanguageByExt[ext]
		if !known {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Get(logging.CategoryDetect).Warn("stat failed for %s: %v", path, err)
			return nil
		}

		hash, size, err := hashFile(path)
		if err != nil {
			logging.Get(logging.CategoryDetect).Warn("hash failed for %s: %v", path, err)
			return nil
		}

		visited[relSlash] = true
		prevHash, existed := knownByPath[relSlash]
		switch {
		case !existed:
			changes = append(changes, FileChange{Path: relSlash, AbsPath: path, Kind: ChangeNew, Language: lang, Hash: hash, Size: size, MTime: info.ModTime()})
		case prevHash != hash:
			changes = append(changes, FileChange{Path: relSlash, AbsPath: path, Kind: ChangeModified, Language: lang, Hash: hash, Size: size, MTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, k := range known {
		if !visited[k.Path] {
			changes = append(changes, FileChange{Path: k.Path, Kind: ChangeDeleted})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	logging.Detect("detected %d changes under %s", len(changes), root)
	return changes, nil
}

// isIgnored reports whether rel or name matches any ignore pattern. Patterns are plain
// substrings of the relative path (mirroring the teacher's lightweight ignore-list
// approach) plus a hard-coded skip for version-control and the index's own state dir.
func isIgnored(rel, name string, patterns []string) bool {
	if name == ".git" || name == ".codeindex" {
		return true
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(rel, p) {
			return true
		}
	}
	return false
}

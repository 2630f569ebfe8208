package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
)

var (
	// ErrInvalidArchive marks data that is not a readable zip archive.
	ErrInvalidArchive = errors.New("invalid zip archive")
	// ErrEntryTooLarge marks an entry above the per-entry limit.
	ErrEntryTooLarge = errors.New("archive entry too large")
)

// Entry is one file of an archive.
type Entry struct {
	// Dirs are the directory segments leading to the file, outermost first.
	Dirs []string
	Name string
	Data []byte
}

// Path returns the entry's slash-separated path inside the archive.
func (e Entry) Path() string {
	return path.Join(append(append([]string{}, e.Dirs...), e.Name)...)
}

// Walk calls fn for every regular file in the zip archive data, in archive
// order. Directory entries and macOS resource forks are skipped. Entries
// larger than maxEntryBytes (0 for no limit) are passed to onError and
// skipped, as are entries that fail to decompress. An error from fn stops
// the walk.
func Walk(data []byte, maxEntryBytes int64, fn func(Entry) error, onError func(name string, err error)) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// Names are sanitized by splitPath.
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		dirs, name, ok := splitPath(f.Name)
		if !ok {
			continue
		}

		payload, err := readEntry(f, maxEntryBytes)
		if err != nil {
			if onError != nil {
				onError(f.Name, err)
			}
			continue
		}
		if err := fn(Entry{Dirs: dirs, Name: name, Data: payload}); err != nil {
			return err
		}
	}
	return nil
}

// splitPath normalizes an entry name. Absolute paths are made relative and
// ".." segments cannot climb above the archive root.
func splitPath(name string) (dirs []string, file string, ok bool) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return nil, "", false
	}
	if parts[0] == "__MACOSX" {
		return nil, "", false
	}
	return parts[:len(parts)-1], parts[len(parts)-1], true
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if limit > 0 && f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrEntryTooLarge, limit)
	}
	return data, nil
}

// FolderStore finds or creates a folder by name under a parent.
type FolderStore interface {
	EnsureFolder(ctx context.Context, name string, parentID int64) (int64, error)
}

// Resolver maps archive directory paths to folder ids below a root folder,
// creating folders on demand. Results are cached for the life of the
// Resolver, normally one archive.
type Resolver struct {
	store FolderStore
	root  int64

	mu    sync.Mutex
	cache map[string]int64
}

// NewResolver creates a resolver rooted at folder root.
func NewResolver(store FolderStore, root int64) *Resolver {
	return &Resolver{store: store, root: root, cache: make(map[string]int64)}
}

// Resolve returns the folder for dirs, creating each missing segment.
func (r *Resolver) Resolve(ctx context.Context, dirs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent := r.root
	for i, name := range dirs {
		key := strings.Join(dirs[:i+1], "/")
		if id, ok := r.cache[key]; ok {
			parent = id
			continue
		}
		id, err := r.store.EnsureFolder(ctx, name, parent)
		if err != nil {
			return 0, fmt.Errorf("folder %q: %w", key, err)
		}
		r.cache[key] = id
		parent = id
	}
	return parent, nil
}

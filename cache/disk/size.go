package disk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// tempPrefix marks in-flight writes; they are invisible to size accounting.
const tempPrefix = "cache-"

type cachedFile struct {
	path string
	size int64
	used time.Time
}

// scan lists the committed files under root and their total size.
// A missing root is an empty cache.
func scan(root string) ([]cachedFile, int64, error) {
	var (
		files []cachedFile
		total int64
	)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.Type().IsRegular(), strings.HasPrefix(d.Name(), tempPrefix):
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, cachedFile{path: p, size: info.Size(), used: info.ModTime()})
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	return files, total, err
}

// evict removes the least recently used files until at most target bytes
// remain. Files already gone count as freed.
func evict(files []cachedFile, total, target int64) (freed, left int64, err error) {
	slices.SortFunc(files, func(a, b cachedFile) int {
		if c := a.used.Compare(b.used); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	left = total
	for _, f := range files {
		if left <= target {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return freed, left, err
		}
		left -= f.size
		freed += f.size
	}
	return freed, left, nil
}

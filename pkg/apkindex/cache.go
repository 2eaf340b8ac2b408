package apkindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"chainguard.dev/apko/pkg/apk/apk"
	"github.com/go-logr/logr"
)

const FileIndex = "APKINDEX.tar.gz"

// Index is a parsed APKINDEX archive.
type Index struct {
	Path        string
	Description string
	packages    map[string][]*apk.Package
}

// Packages returns every entry named name. Most indices
// contain at most one.
func (idx *Index) Packages(name string) []*apk.Package {
	return idx.packages[name]
}

func (idx *Index) Count() int {
	var n int
	for _, p := range idx.packages {
		n += len(p)
	}
	return n
}

// Providers returns the entries that list name in their
// provides.
func (idx *Index) Providers(name string) []*apk.Package {
	var out []*apk.Package
	for _, pkgs := range idx.packages {
		for _, p := range pkgs {
			for _, provides := range p.Provides {
				if providedName(provides) == name {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// providedName strips the version constraint from
// a provides entry (e.g. "so:libc.musl-x86_64.so.1=1").
func providedName(s string) string {
	for i, c := range s {
		switch c {
		case '=', '<', '>', '~':
			return s[:i]
		}
	}
	return s
}

// Cache holds parsed indices for the lifetime of a single run,
// keyed by file path. An entry is only valid until the file is
// rewritten, so every writer of an index file must call
// Invalidate before anything reads it again.
//
// Cache is not safe for concurrent use.
type Cache struct {
	entries map[string]*Index
}

func NewCache() *Cache {
	return &Cache{entries: map[string]*Index{}}
}

// Load returns the parsed index at path, reading it from disk
// only if it is not already cached. A missing file returns an
// error wrapping os.ErrNotExist.
func (c *Cache) Load(ctx context.Context, path string) (*Index, error) {
	path = filepath.Clean(path)
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)

	if idx, ok := c.entries[path]; ok {
		log.V(5).Info("using cached index")
		return idx, nil
	}

	idx, err := parse(path)
	if err != nil {
		return nil, err
	}
	log.V(2).Info("parsed index", "count", idx.Count(), "description", idx.Description)
	c.entries[path] = idx
	return idx, nil
}

// Invalidate drops any cached parse of the index at path.
func (c *Cache) Invalidate(path string) {
	delete(c.entries, filepath.Clean(path))
}

// Len returns the number of cached indices.
func (c *Cache) Len() int {
	return len(c.entries)
}

func parse(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := apk.IndexFromArchive(f)
	if err != nil {
		return nil, fmt.Errorf("parsing index %s: %w", path, err)
	}

	idx := &Index{
		Path:        path,
		Description: raw.Description,
		packages:    map[string][]*apk.Package{},
	}
	for _, p := range raw.Packages {
		idx.packages[p.Name] = append(idx.packages[p.Name], p)
	}
	return idx, nil
}

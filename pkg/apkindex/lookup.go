package apkindex

import (
	"context"
	"errors"
	"os"

	"chainguard.dev/apko/pkg/apk/apk"
	"github.com/go-logr/logr"

	"github.com/djcass44/pmbuild/pkg/version"
)

// Lookup finds the published entry of a package across all of
// the indices of an architecture.
type Lookup struct {
	cache   *Cache
	paths   func(arch string) []string
	compare version.Comparator
}

// NewLookup creates a Lookup. paths returns the index files to
// consult for an architecture, in order of preference.
func NewLookup(cache *Cache, paths func(arch string) []string, compare version.Comparator) *Lookup {
	if compare == nil {
		compare = version.Compare
	}
	return &Lookup{
		cache:   cache,
		paths:   paths,
		compare: compare,
	}
}

// Package returns the highest version of name published for
// arch, or nil if no index contains it. Entries matching by
// name are preferred over entries that only provide name.
func (l *Lookup) Package(ctx context.Context, name, arch string) (*apk.Package, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkgname", name, "arch", arch)

	var named, provided []*apk.Package
	for _, path := range l.paths(arch) {
		idx, err := l.cache.Load(ctx, path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.V(3).Info("skipping missing index", "path", path)
				continue
			}
			log.Error(err, "failed to load index", "path", path)
			return nil, err
		}
		named = append(named, idx.Packages(name)...)
		provided = append(provided, idx.Providers(name)...)
	}

	candidates := named
	if len(candidates) == 0 {
		candidates = provided
	}
	best, err := l.highest(candidates)
	if err != nil {
		return nil, err
	}
	if best == nil {
		log.V(2).Info("package not found in any index")
		return nil, nil
	}
	log.V(2).Info("found package in index", "version", best.Version)
	return best, nil
}

func (l *Lookup) highest(pkgs []*apk.Package) (*apk.Package, error) {
	var best *apk.Package
	for _, p := range pkgs {
		if best == nil {
			best = p
			continue
		}
		res, err := l.compare(p.Version, best.Version)
		if err != nil {
			return nil, err
		}
		if res == version.Newer {
			best = p
		}
	}
	return best, nil
}

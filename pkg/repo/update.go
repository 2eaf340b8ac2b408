package repo

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/apkindex"
	"github.com/djcass44/pmbuild/pkg/downloader"
)

// Updater keeps local copies of the indices of the configured
// mirrors.
type Updater struct {
	Spec  *v1.WorkspaceSpec
	Cache *apkindex.Cache
}

func NewUpdater(spec *v1.WorkspaceSpec, cache *apkindex.Cache) *Updater {
	return &Updater{Spec: spec, Cache: cache}
}

// IndexName returns the file name the index of the mirror at
// url is stored under.
func IndexName(url string) string {
	return "APKINDEX." + downloader.HashString(url) + ".tar.gz"
}

// IndexPaths returns every index consulted for arch, starting
// with the local repository.
func (u *Updater) IndexPaths(arch string) []string {
	paths := []string{filepath.Join(u.Spec.PackagesDir(arch), apkindex.FileIndex)}
	for _, m := range u.Spec.Mirrors {
		paths = append(paths, filepath.Join(u.Spec.MirrorCacheDir(arch), IndexName(m.URL)))
	}
	return paths
}

// Update downloads the index of every mirror for arch.
func (u *Updater) Update(ctx context.Context, arch string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("arch", arch)

	dl, err := downloader.NewDownloader(u.Spec.MirrorCacheDir(arch))
	if err != nil {
		log.Error(err, "failed to prepare cache directory")
		return err
	}
	for _, m := range u.Spec.Mirrors {
		src := strings.TrimSuffix(m.URL, "/") + "/" + arch + "/" + apkindex.FileIndex
		dst, err := dl.Download(ctx, src, IndexName(m.URL))
		if err != nil {
			return err
		}
		u.Cache.Invalidate(dst)
		log.V(1).Info("updated mirror index", "mirror", m.URL, "path", dst)
	}
	return nil
}

package build

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/alessio/shellescape"
	"github.com/go-logr/logr"

	"github.com/djcass44/pmbuild/pkg/apkindex"
	"github.com/djcass44/pmbuild/pkg/chroot"
)

const fileIndexTemp = apkindex.FileIndex + "_"

// Publisher regenerates and signs the APKINDEX of the local
// package repository.
type Publisher struct {
	Runner chroot.Runner
	// Root is the host path of the native chroot.
	Root string
	// Packages is the host path of the channel repository, which
	// is mounted into the chroot below the build user's home.
	Packages  string
	BuildUser string
	Cache     *apkindex.Cache
	// Now returns the time written into the index description.
	Now func() time.Time
}

// Publish reindexes the repository of arch, or every
// architecture in the repository when arch is empty.
func (p *Publisher) Publish(ctx context.Context, arch string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("packages", p.Packages)

	var paths []string
	if arch != "" {
		paths = append(paths, filepath.Join(p.Packages, arch))
	} else {
		entries, err := os.ReadDir(p.Packages)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error(err, "failed to list repository")
			return err
		}
		for _, e := range entries {
			paths = append(paths, filepath.Join(p.Packages, e.Name()))
		}
	}

	for _, dir := range paths {
		if err := p.publish(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, dir string) error {
	arch := filepath.Base(dir)
	log := logr.FromContextOrDiscard(ctx).WithValues("arch", arch, "path", dir)

	// whatever happens, the cached parse of this index is no
	// longer authoritative
	defer p.Cache.Invalidate(filepath.Join(dir, apkindex.FileIndex))

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.V(1).Info("not a directory, skipping")
		return nil
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	description := now().Format("2006-01-02 15:04:05.000000")

	wd := path.Join("/home", p.BuildUser, "packages", "pmos", arch)
	commands := [][]string{
		{"sh", "-c", "apk -q index --output " + fileIndexTemp +
			" --description " + shellescape.Quote(description) +
			" --rewrite-arch " + shellescape.Quote(arch) + " *.apk"},
		{"abuild-sign", fileIndexTemp},
		{"mv", fileIndexTemp, apkindex.FileIndex},
	}
	log.Info("updating index")
	for _, argv := range commands {
		if err := p.Runner.User(ctx, p.Root, argv, wd); err != nil {
			log.Error(err, "failed to update index", "cmd", argv[0])
			return err
		}
	}
	return nil
}

package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/gosimple/hashdir"

	"github.com/djcass44/pmbuild/pkg/aports"
	"github.com/djcass44/pmbuild/pkg/chroot"
	"github.com/djcass44/pmbuild/pkg/fileutil"
	"github.com/djcass44/pmbuild/pkg/linuxutil"
)

var ErrNotFound = errors.New("aport or APKBUILD not found")

// byproducts of abuild that must never be staged
var skipDirs = map[string]struct{}{
	"src": {},
	"pkg": {},
}

type Stager struct {
	BuildUser string
}

func NewStager(buildUser string) *Stager {
	return &Stager{BuildUser: buildUser}
}

// BuildDir returns the chroot-relative build directory.
func (s *Stager) BuildDir() string {
	return "/home/" + s.BuildUser + "/build"
}

// Stage copies the aport at aportDir into the build directory of
// the chroot at root, replacing whatever was there before. Links
// are resolved and the result is owned by the build user.
//
// It returns the sha256 digest of the staged tree.
func (s *Stager) Stage(ctx context.Context, aportDir, root string) (string, error) {
	dst := chroot.HostPath(root, s.BuildDir())
	log := logr.FromContextOrDiscard(ctx).WithValues("aport", aportDir, "dst", dst)

	if _, err := os.Stat(filepath.Join(aportDir, aports.FileAPKBuild)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrNotFound, aportDir)
		}
		log.Error(err, "failed to find APKBUILD")
		return "", err
	}

	// clear out anything left behind by a previous build
	if err := os.RemoveAll(dst); err != nil {
		log.Error(err, "failed to remove build directory")
		return "", err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		log.Error(err, "failed to create build directory")
		return "", err
	}

	entries, err := os.ReadDir(aportDir)
	if err != nil {
		log.Error(err, "failed to read aport")
		return "", err
	}
	for _, e := range entries {
		if _, ok := skipDirs[e.Name()]; ok {
			log.Info("warning: not copying build byproduct, consider removing it", "path", filepath.Join(aportDir, e.Name()))
			continue
		}
		log.V(3).Info("copying entry", "name", e.Name())
		if err := fileutil.CopyResolved(filepath.Join(aportDir, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			log.Error(err, "failed to copy entry", "name", e.Name())
			return "", err
		}
	}

	uid, gid, err := linuxutil.LookupUser(ctx, root, s.BuildUser)
	if err != nil {
		return "", err
	}
	if err := linuxutil.ChownR(dst, uid, gid); err != nil {
		log.Error(err, "failed to change ownership of build directory", "uid", uid, "gid", gid)
		return "", err
	}

	digest, err := hashdir.Make(dst, "sha256")
	if err != nil {
		log.Error(err, "failed to digest build directory")
		return "", err
	}
	log.V(1).Info("staged aport", "digest", digest)
	return digest, nil
}

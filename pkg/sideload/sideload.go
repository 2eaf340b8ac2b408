package sideload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-logr/logr"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/build"
	"github.com/djcass44/pmbuild/pkg/remote"
)

const dirTrustedKeys = "/etc/apk/keys/"

var (
	ErrNotBuilt   = errors.New("package could not be built")
	ErrNotIndexed = errors.New("package not found in any index")
	ErrNoKey      = errors.New("no public key found")
)

// Builder builds a package into the local repository.
type Builder interface {
	Build(ctx context.Context, name, arch string, force bool) error
}

// Request describes a batch of packages to install on a device.
type Request struct {
	Packages []string
	// Arch of the device. Defaults to the native architecture.
	Arch string
	// CopyKey installs the local signing key on the device
	// before anything else.
	CopyKey bool
	// Reinstall removes the packages before installing them, so
	// that apk does not skip packages of the same version.
	Reinstall bool
	Target    remote.Target
}

type Pipeline struct {
	Spec      *v1.WorkspaceSpec
	Lookup    build.IndexLookup
	Builder   Builder
	Transport remote.Transport
}

// Run installs the packages of req on the device. Every package
// is resolved (and built if need be) before the device is
// contacted. Any failure aborts the whole request.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	arch := req.Arch
	if arch == "" {
		arch = p.Spec.NativeArch
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("arch", arch, "target", req.Target.String())

	files := make([]string, 0, len(req.Packages))
	for _, name := range req.Packages {
		path, err := p.resolve(ctx, name, arch)
		if err != nil {
			return err
		}
		files = append(files, path)
	}

	if req.CopyKey {
		if err := p.copyKey(ctx, req.Target); err != nil {
			return err
		}
	}

	if req.Reinstall {
		log.Info("removing packages", "packages", req.Packages)
		if err := p.Transport.Run(ctx, req.Target, remote.Script(remote.Sudo(append([]string{"apk", "del"}, req.Packages...)...))); err != nil {
			log.Error(err, "failed to remove packages")
			return err
		}
	}

	log.Info("copying packages", "files", files)
	if err := p.Transport.Copy(ctx, req.Target, files, remote.TempDir); err != nil {
		log.Error(err, "failed to copy packages")
		return err
	}
	tmp := remote.TempPaths(files)
	log.Info("installing packages", "packages", req.Packages)
	script := remote.Script(
		remote.Sudo(append([]string{"apk", "add"}, tmp...)...),
		append(remote.Command{"rm"}, tmp...),
	)
	if err := p.Transport.Run(ctx, req.Target, script); err != nil {
		log.Error(err, "failed to install packages")
		return err
	}
	return nil
}

// resolve returns the path of the local binary of name, building
// it first if the file is missing.
func (p *Pipeline) resolve(ctx context.Context, name, arch string) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkgname", name, "arch", arch)

	path, err := p.localFile(ctx, name, arch)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		log.V(1).Info("using local binary", "path", path)
		return path, nil
	}

	log.Info("local binary is missing, building package", "path", path)
	if err := p.Builder.Build(ctx, name, arch, true); err != nil {
		log.Error(err, "failed to build package")
		return "", err
	}

	// the build republished the index, so look the version up
	// again
	path, err = p.localFile(ctx, name, arch)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		err = fmt.Errorf("%w: %s: %s does not exist", ErrNotBuilt, name, path)
		log.Error(err, "failed to resolve package")
		return "", err
	}
	return path, nil
}

// localFile returns the path of the binary of name at the version
// in the index. The file is named after name even when the index
// matched a package that provides it.
func (p *Pipeline) localFile(ctx context.Context, name, arch string) (string, error) {
	pkg, err := p.Lookup.Package(ctx, name, arch)
	if err != nil {
		return "", err
	}
	if pkg == nil {
		return "", fmt.Errorf("%w: %s (%s)", ErrNotIndexed, name, arch)
	}
	return filepath.Join(p.Spec.PackagesDir(arch), fmt.Sprintf("%s-%s.apk", name, pkg.Version)), nil
}

func (p *Pipeline) copyKey(ctx context.Context, target remote.Target) error {
	log := logr.FromContextOrDiscard(ctx)

	keys, err := filepath.Glob(filepath.Join(p.Spec.KeysDir(), "*.pub"))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		err = fmt.Errorf("%w in %s", ErrNoKey, p.Spec.KeysDir())
		log.Error(err, "failed to copy key")
		return err
	}
	sort.Strings(keys)
	key := keys[0]

	log.Info("copying signing key", "key", key)
	if err := p.Transport.Copy(ctx, target, []string{key}, remote.TempDir); err != nil {
		log.Error(err, "failed to copy key")
		return err
	}
	script := remote.Script(remote.Sudo("mv", "-n", remote.TempPaths([]string{key})[0], dirTrustedKeys))
	if err := p.Transport.Run(ctx, target, script); err != nil {
		log.Error(err, "failed to trust key")
		return err
	}
	return nil
}

package build

import (
	"context"
	"path/filepath"

	"github.com/go-logr/logr"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/aports"
	"github.com/djcass44/pmbuild/pkg/chroot"
	"github.com/djcass44/pmbuild/pkg/version"
)

// Builder builds aports into the local repository when their
// published binaries are missing or out of date.
type Builder struct {
	Spec      *v1.WorkspaceSpec
	Tree      *aports.Tree
	Lookup    IndexLookup
	Compare   version.Comparator
	Runner    chroot.Runner
	Stager    *Stager
	Publisher *Publisher
}

// Build builds the aport providing name for arch. Unless force
// is set, nothing is done when IsNecessary decides that the
// published binary can be used.
func (b *Builder) Build(ctx context.Context, name, arch string, force bool) error {
	if arch == "" {
		arch = b.Spec.NativeArch
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("pkgname", name, "arch", arch, "force", force)

	apkbuild, err := b.Tree.APKBuild(ctx, name)
	if err != nil {
		log.Error(err, "failed to find aport")
		return err
	}

	if !force {
		decision, err := IsNecessary(ctx, apkbuild, arch, b.Lookup, b.Compare)
		if err != nil {
			log.Error(err, "failed to check whether build is necessary")
			return err
		}
		if !decision.Build {
			log.Info("skipping build", "reason", decision.Reason)
			return nil
		}
		log.V(1).Info("build required", "reason", decision.Reason)
	}

	root := b.Spec.ChrootBuildroot(arch)
	if b.Spec.Jobs != "" {
		if err := ConfigureJobs(ctx, chroot.HostPath(root, FileAbuildConf), b.Spec.Jobs); err != nil {
			return err
		}
	}
	if b.Spec.CcacheSize != "" {
		if err := ConfigureCcacheSize(ctx, filepath.Join(b.Spec.CcacheDir(arch), FileCcacheConf), b.Spec.CcacheSize); err != nil {
			return err
		}
	}

	if _, err := b.Stager.Stage(ctx, apkbuild.Path, root); err != nil {
		return err
	}

	log.Info("building package", "version", apkbuild.Version())
	if err := b.Runner.User(ctx, root, []string{"abuild", "-r", "-f"}, b.Stager.BuildDir()); err != nil {
		log.Error(err, "failed to build package")
		return err
	}

	return b.Publisher.Publish(ctx, arch)
}

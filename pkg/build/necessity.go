package build

import (
	"context"
	"fmt"

	"chainguard.dev/apko/pkg/apk/apk"
	"github.com/go-logr/logr"

	"github.com/djcass44/pmbuild/pkg/aports"
	"github.com/djcass44/pmbuild/pkg/version"
)

// IndexLookup returns the published binary entry of a package
// for an architecture, or nil if there is none.
type IndexLookup interface {
	Package(ctx context.Context, name, arch string) (*apk.Package, error)
}

type Reason string

const (
	ReasonNoBinary        Reason = "no binary available"
	ReasonArchUnsupported Reason = "architecture not buildable locally"
	ReasonBinaryNewer     Reason = "binary newer than aport"
	ReasonOutOfDate       Reason = "binary out of date"
	ReasonUpToDate        Reason = "versions equal"
)

// Decision is the outcome of IsNecessary.
type Decision struct {
	// Build is true when the package must be built locally.
	// When false the published binary is used instead.
	Build  bool
	Reason Reason
	// Warning is set when the decision is unexpected and should
	// be surfaced to the operator.
	Warning string
}

// IsNecessary decides whether apkbuild has to be built for arch.
// Unlike abuild's own check, this also works across
// architectures. The decision only depends on its inputs.
func IsNecessary(ctx context.Context, apkbuild *aports.APKBuild, arch string, lookup IndexLookup, compare version.Comparator) (Decision, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkgname", apkbuild.Pkgname, "arch", arch)
	if compare == nil {
		compare = version.Compare
	}
	versionAport := apkbuild.Version()

	binary, err := lookup.Package(ctx, apkbuild.Pkgname, arch)
	if err != nil {
		return Decision{}, fmt.Errorf("looking up %s: %w", apkbuild.Pkgname, err)
	}
	if binary == nil {
		log.V(1).Info("build is necessary: no binary package available")
		return Decision{Build: true, Reason: ReasonNoBinary}, nil
	}

	// the aport can't be built for this arch, so fall back to
	// the upstream binary
	if arch != "" && !aports.CheckArches(apkbuild.Arch, arch) {
		d := Decision{
			Reason:  ReasonArchUnsupported,
			Warning: fmt.Sprintf("aport %s can't be built for %s, using the upstream binary package %s", apkbuild.Pkgname, arch, binary.Version),
		}
		log.Info("warning: "+d.Warning, "arches", apkbuild.Arch)
		return d, nil
	}

	versionBinary := binary.Version
	res, err := compare(versionBinary, versionAport)
	if err != nil {
		return Decision{}, fmt.Errorf("comparing versions of %s: %w", apkbuild.Pkgname, err)
	}
	if res == version.Newer {
		d := Decision{
			Reason:  ReasonBinaryNewer,
			Warning: fmt.Sprintf("about to install %s %s (local aports: %s), consider pulling the latest aports", apkbuild.Pkgname, versionBinary, versionAport),
		}
		log.Info("warning: " + d.Warning)
		return d, nil
	}
	if versionBinary != versionAport {
		log.V(1).Info("build is necessary: binary package out of date", "binary", versionBinary, "aport", versionAport)
		return Decision{Build: true, Reason: ReasonOutOfDate}, nil
	}

	log.V(2).Info("build is not necessary: binary package is up to date", "version", versionBinary)
	return Decision{Reason: ReasonUpToDate}, nil
}

package aports

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/drone/envsubst"
	"github.com/go-logr/logr"

	"github.com/djcass44/pmbuild/pkg/version"
)

const FileAPKBuild = "APKBUILD"

// APKBuild is the subset of an APKBUILD that the build
// pipeline needs.
type APKBuild struct {
	Pkgname string
	Pkgver  string
	Pkgrel  string
	Arch    []string
	// Path is the aport directory containing the APKBUILD.
	Path string
}

// Version returns the full "<pkgver>-r<pkgrel>" version.
func (a *APKBuild) Version() string {
	return version.Join(a.Pkgver, a.Pkgrel)
}

var apkbuildKeys = map[string]struct{}{
	"pkgname":  {},
	"pkgver":   {},
	"pkgrel":   {},
	"arch":     {},
	"_pkgname": {},
	"_pkgver":  {},
	"_commit":  {},
}

// ParseAPKBuild reads the top-level variable assignments of an
// APKBUILD. Values may reference variables assigned above them.
// The file is never executed.
func ParseAPKBuild(ctx context.Context, path string) (*APKBuild, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		log.Error(err, "failed to open APKBUILD")
		return nil, err
	}
	defer f.Close()

	vars := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		// only unindented assignments are top-level
		if line == "" || line[0] == ' ' || line[0] == '\t' || line[0] == '#' {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if _, ok := apkbuildKeys[key]; !ok {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		expanded, err := envsubst.Eval(val, func(s string) string {
			return vars[s]
		})
		if err != nil {
			return nil, fmt.Errorf("expanding %s in %s: %w", key, path, err)
		}
		vars[key] = expanded
	}
	if err := scanner.Err(); err != nil {
		log.Error(err, "failed to read APKBUILD")
		return nil, err
	}

	a := &APKBuild{
		Pkgname: vars["pkgname"],
		Pkgver:  vars["pkgver"],
		Pkgrel:  vars["pkgrel"],
		Arch:    strings.Fields(vars["arch"]),
		Path:    filepath.Dir(path),
	}
	if a.Pkgname == "" || a.Pkgver == "" || a.Pkgrel == "" {
		return nil, fmt.Errorf("incomplete APKBUILD %s: pkgname, pkgver and pkgrel are required", path)
	}
	log.V(2).Info("parsed APKBUILD", "pkgname", a.Pkgname, "version", a.Version(), "arch", a.Arch)
	return a, nil
}

// CheckArches reports whether a package declaring arches can be
// built for arch.
func CheckArches(arches []string, arch string) bool {
	for _, a := range arches {
		if a == "!"+arch {
			return false
		}
	}
	for _, a := range arches {
		if a == arch || a == "all" || a == "noarch" {
			return true
		}
	}
	return false
}

package aports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

var ErrNotFound = errors.New("aport not found")

// Tree is a checkout of the package sources, laid out as
// <root>/<category>/<pkgname>/APKBUILD.
type Tree struct {
	Root string
}

func NewTree(root string) *Tree {
	return &Tree{Root: filepath.Clean(root)}
}

// Find returns the aport directory of pkgname.
func (t *Tree) Find(ctx context.Context, pkgname string) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("pkgname", pkgname)

	patterns := []string{
		filepath.Join(t.Root, "*", pkgname),
		filepath.Join(t.Root, "device", "*", pkgname),
	}
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				log.V(2).Info("located aport", "path", m)
				return m, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, pkgname)
}

// APKBuild locates and parses the APKBUILD of pkgname.
func (t *Tree) APKBuild(ctx context.Context, pkgname string) (*APKBuild, error) {
	dir, err := t.Find(ctx, pkgname)
	if err != nil {
		return nil, err
	}
	return ParseAPKBuild(ctx, filepath.Join(dir, FileAPKBuild))
}

// FindDevice returns the path of file inside the device package
// of codename (device/*/device-<codename>/<file>). An empty path
// and no error are returned when the device does not exist.
func (t *Tree) FindDevice(codename, file string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(t.Root, "device", "*", "device-"+codename, file))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s found multiple times in the device subdirectory of %s", codename, t.Root)
	}
}

// ListCodenames returns the codenames of all devices, optionally
// restricted to a vendor and excluding unmaintained devices.
func (t *Tree) ListCodenames(vendor string, unmaintained bool) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(t.Root, "device", "*", "device-*"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		if !unmaintained && filepath.Base(filepath.Dir(m)) == "unmaintained" {
			continue
		}
		_, device, _ := strings.Cut(filepath.Base(m), "-")
		if vendor == "" || strings.HasPrefix(device, vendor+"-") {
			out = append(out, device)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListVendors returns the distinct vendors of all devices.
func (t *Tree) ListVendors() ([]string, error) {
	codenames, err := t.ListCodenames("", true)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, c := range codenames {
		vendor, _, _ := strings.Cut(c, "-")
		if _, ok := seen[vendor]; ok {
			continue
		}
		seen[vendor] = struct{}{}
		out = append(out, vendor)
	}
	sort.Strings(out)
	return out, nil
}

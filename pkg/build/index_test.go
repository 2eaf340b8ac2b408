package build

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djcass44/pmbuild/internal/testutil"
	"github.com/djcass44/pmbuild/pkg/apkindex"
)

// fakeRunner emulates the index commands by operating on the
// host directory the chroot path is mounted from.
type fakeRunner struct {
	t        *testing.T
	root     string
	packages string
	calls    [][]string
	dirs     []string
	onBuild  func()
}

func (f *fakeRunner) Root(ctx context.Context, root string, argv []string, dir string) error {
	return f.User(ctx, root, argv, dir)
}

func (f *fakeRunner) User(_ context.Context, root string, argv []string, dir string) error {
	assert.EqualValues(f.t, f.root, root)
	f.calls = append(f.calls, argv)
	f.dirs = append(f.dirs, dir)

	host := filepath.Join(f.packages, path.Base(dir))
	switch argv[0] {
	case "sh":
		matches, err := filepath.Glob(filepath.Join(host, "*.apk"))
		require.NoError(f.t, err)
		var entries []testutil.Entry
		for _, m := range matches {
			// <name>-<pkgver>-r<pkgrel>.apk
			parts := strings.Split(strings.TrimSuffix(filepath.Base(m), ".apk"), "-")
			n := len(parts)
			entries = append(entries, testutil.Entry{
				Name:    strings.Join(parts[:n-2], "-"),
				Version: parts[n-2] + "-" + parts[n-1],
				Arch:    path.Base(dir),
			})
		}
		testutil.WriteIndex(f.t, filepath.Join(host, outputOf(argv)), "test", entries...)
	case "mv":
		return os.Rename(filepath.Join(host, argv[1]), filepath.Join(host, argv[2]))
	case "abuild":
		if f.onBuild != nil {
			f.onBuild()
		}
	}
	return nil
}

// outputOf extracts the --output argument of the index command.
func outputOf(argv []string) string {
	fields := strings.Fields(argv[2])
	for i, f := range fields {
		if f == "--output" {
			return fields[i+1]
		}
	}
	return ""
}

func TestPublisher_Publish(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	packages := t.TempDir()
	repo := filepath.Join(packages, "x86_64")
	index := filepath.Join(repo, apkindex.FileIndex)
	require.NoError(t, os.MkdirAll(repo, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "bar-2.0-r0.apk"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "baz-0.1-r1.apk"), nil, 0644))
	testutil.WriteIndex(t, index, "old", testutil.Entry{Name: "bar", Version: "1.9-r3", Arch: "x86_64"})

	cache := apkindex.NewCache()
	runner := &fakeRunner{t: t, root: "/work/chroot_native", packages: packages}
	p := &Publisher{
		Runner:    runner,
		Root:      "/work/chroot_native",
		Packages:  packages,
		BuildUser: "pmos",
		Cache:     cache,
		Now: func() time.Time {
			return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		},
	}

	// prime the cache with the pre-build index
	idx, err := cache.Load(ctx, index)
	require.NoError(t, err)
	require.Len(t, idx.Packages("bar"), 1)
	assert.EqualValues(t, "1.9-r3", idx.Packages("bar")[0].Version)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Publish(ctx, "x86_64"))
		assert.Zero(t, cache.Len())

		idx, err = cache.Load(ctx, index)
		require.NoError(t, err)
		assert.EqualValues(t, 2, idx.Count())
		require.Len(t, idx.Packages("bar"), 1)
		assert.EqualValues(t, "2.0-r0", idx.Packages("bar")[0].Version)
		require.Len(t, idx.Packages("baz"), 1)
	}
	assert.NoFileExists(t, filepath.Join(repo, "APKINDEX.tar.gz_"))

	assert.EqualValues(t, []string{"sh", "-c", "apk -q index --output APKINDEX.tar.gz_ --description '2024-01-02 03:04:05.000000' --rewrite-arch x86_64 *.apk"}, runner.calls[0])
	assert.EqualValues(t, []string{"abuild-sign", "APKINDEX.tar.gz_"}, runner.calls[1])
	assert.EqualValues(t, []string{"mv", "APKINDEX.tar.gz_", "APKINDEX.tar.gz"}, runner.calls[2])
	for _, d := range runner.dirs {
		assert.EqualValues(t, "/home/pmos/packages/pmos/x86_64", d)
	}
}

func TestPublisher_PublishAll(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	packages := t.TempDir()
	for _, arch := range []string{"x86_64", "aarch64"} {
		require.NoError(t, os.MkdirAll(filepath.Join(packages, arch), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(packages, arch, "foo-1.0-r0.apk"), nil, 0644))
	}
	// a stray file where an architecture directory is expected
	require.NoError(t, os.WriteFile(filepath.Join(packages, "armv7"), nil, 0644))

	runner := &fakeRunner{t: t, root: "/work/chroot_native", packages: packages}
	p := &Publisher{
		Runner:    runner,
		Root:      "/work/chroot_native",
		Packages:  packages,
		BuildUser: "pmos",
		Cache:     apkindex.NewCache(),
	}
	require.NoError(t, p.Publish(ctx, ""))
	assert.Len(t, runner.calls, 6)
	assert.FileExists(t, filepath.Join(packages, "x86_64", apkindex.FileIndex))
	assert.FileExists(t, filepath.Join(packages, "aarch64", apkindex.FileIndex))

	t.Run("missing arch is skipped", func(t *testing.T) {
		runner.calls = nil
		require.NoError(t, p.Publish(ctx, "riscv64"))
		assert.Empty(t, runner.calls)
	})
	t.Run("missing repository", func(t *testing.T) {
		runner.calls = nil
		missing := *p
		missing.Packages = filepath.Join(t.TempDir(), "nope")
		require.NoError(t, missing.Publish(ctx, ""))
		assert.Empty(t, runner.calls)
	})
}

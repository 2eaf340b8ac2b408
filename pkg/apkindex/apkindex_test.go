package apkindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djcass44/pmbuild/internal/testutil"
)

func TestCache(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	path := filepath.Join(t.TempDir(), "x86_64", FileIndex)
	testutil.WriteIndex(t, path, "first", testutil.Entry{Name: "bar", Version: "1.9-r3", Arch: "x86_64"})

	cache := NewCache()

	idx, err := cache.Load(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, idx.Count())
	assert.EqualValues(t, "1.9-r3", idx.Packages("bar")[0].Version)

	// rewrite the file underneath the cache
	testutil.WriteIndex(t, path, "second", testutil.Entry{Name: "bar", Version: "2.0-r0", Arch: "x86_64"})

	t.Run("cached parse is served until invalidated", func(t *testing.T) {
		idx, err := cache.Load(ctx, path)
		require.NoError(t, err)
		assert.EqualValues(t, "1.9-r3", idx.Packages("bar")[0].Version)
	})
	t.Run("invalidated parse is reloaded", func(t *testing.T) {
		cache.Invalidate(path + "/")
		assert.Zero(t, cache.Len())

		idx, err := cache.Load(ctx, path)
		require.NoError(t, err)
		assert.EqualValues(t, "2.0-r0", idx.Packages("bar")[0].Version)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := cache.Load(ctx, filepath.Join(t.TempDir(), FileIndex))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLookup_Package(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	dir := t.TempDir()
	local := filepath.Join(dir, "local", FileIndex)
	mirror := filepath.Join(dir, "mirror", FileIndex)

	testutil.WriteIndex(t, local, "local",
		testutil.Entry{Name: "bar", Version: "1.9-r3", Arch: "x86_64"},
	)
	testutil.WriteIndex(t, mirror, "mirror",
		testutil.Entry{Name: "bar", Version: "1.9-r10", Arch: "x86_64"},
		testutil.Entry{Name: "musl", Version: "1.2.5-r0", Arch: "x86_64", Provides: []string{"so:libc.musl-x86_64.so.1=1"}},
	)

	lookup := NewLookup(NewCache(), func(arch string) []string {
		return []string{local, mirror, filepath.Join(dir, "missing", FileIndex)}
	}, nil)

	var cases = []struct {
		name    string
		version string
	}{
		{"bar", "1.9-r10"},
		{"so:libc.musl-x86_64.so.1", "1.2.5-r0"},
		{"foo", ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			out, err := lookup.Package(ctx, tt.name, "x86_64")
			require.NoError(t, err)
			if tt.version == "" {
				assert.Nil(t, out)
				return
			}
			require.NotNil(t, out)
			assert.EqualValues(t, tt.version, out.Version)
		})
	}
}

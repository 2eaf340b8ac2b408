package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheDirs(t *testing.T) {
	work := t.TempDir()
	for _, d := range []string{"cache_apk_x86_64", "cache_apk_armv7", "cache_ccache_x86_64", "packages"} {
		require.NoError(t, os.MkdirAll(filepath.Join(work, d), 0755))
	}

	var cases = []struct {
		ccache bool
		out    []string
	}{
		{
			false,
			[]string{"cache_apk_armv7", "cache_apk_x86_64"},
		},
		{
			true,
			[]string{"cache_apk_armv7", "cache_apk_x86_64", "cache_ccache_x86_64"},
		},
	}
	for _, tt := range cases {
		out, err := cacheDirs(work, tt.ccache)
		require.NoError(t, err)
		expected := make([]string, len(tt.out))
		for i := range tt.out {
			expected[i] = filepath.Join(work, tt.out[i])
		}
		assert.EqualValues(t, expected, out)
	}
}

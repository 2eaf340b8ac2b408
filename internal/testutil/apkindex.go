package testutil

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Entry is a single package record of a test APKINDEX.
type Entry struct {
	Name     string
	Version  string
	Arch     string
	Provides []string
}

// WriteIndex writes an unsigned APKINDEX.tar.gz containing
// entries to path.
func WriteIndex(t *testing.T, path, description string, entries ...Entry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	sb := strings.Builder{}
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("P:%s\nV:%s\nA:%s\nS:1\nI:1\nT:test package\n", e.Name, e.Version, e.Arch))
		if len(e.Provides) > 0 {
			sb.WriteString("p:" + strings.Join(e.Provides, " ") + "\n")
		}
		sb.WriteString("\n")
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for name, data := range map[string]string{
		"DESCRIPTION": description,
		"APKINDEX":    sb.String(),
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
}

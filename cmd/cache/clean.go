package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/djcass44/pmbuild/pkg/chroot"
	"github.com/djcass44/pmbuild/pkg/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Removes all downloaded mirror indices",
	RunE:  clean,
}

const (
	flagCcache = "ccache"
)

func init() {
	cleanCmd.Flags().Bool(flagCcache, false, "also remove the compiler caches")
}

func clean(cmd *cobra.Command, _ []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	if err := chroot.CheckPrivileges(); err != nil {
		return err
	}
	ws, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	withCcache, _ := cmd.Flags().GetBool(flagCcache)

	dirs, err := cacheDirs(ws.Spec.Work, withCcache)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		log.Info("deleting cache dir", "dir", d)
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("removing cache dir: %w", err)
		}
	}
	return nil
}

// cacheDirs returns the per-architecture cache directories in
// the work directory.
func cacheDirs(work string, withCcache bool) ([]string, error) {
	patterns := []string{"cache_apk_*"}
	if withCcache {
		patterns = append(patterns, "cache_ccache_*")
	}
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(filepath.Clean(work), p))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

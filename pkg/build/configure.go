package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
)

const (
	// FileAbuildConf is the chroot-relative path of abuild's
	// configuration.
	FileAbuildConf = "/etc/abuild.conf"
	// FileCcacheConf is the name of the configuration file inside
	// a ccache directory.
	FileCcacheConf = "ccache.conf"

	prefixJobs       = "export JOBS="
	prefixCcacheSize = "max_size = "
)

var ErrNotApplied = errors.New("setting did not persist")

func ApplyJobs(path, jobs string) error {
	return setLine(path, prefixJobs, jobs)
}

// ReadBackJobs reports whether abuild.conf at path sets JOBS to
// jobs.
func ReadBackJobs(path, jobs string) (bool, error) {
	return hasLine(path, prefixJobs, jobs)
}

func ApplyCcacheSize(path, size string) error {
	return setLine(path, prefixCcacheSize, size)
}

// ReadBackCcacheSize reports whether ccache.conf at path limits
// the cache to size.
func ReadBackCcacheSize(path, size string) (bool, error) {
	return hasLine(path, prefixCcacheSize, size)
}

// ConfigureJobs sets the number of parallel jobs used by abuild
// and fails unless the change can be read back.
func ConfigureJobs(ctx context.Context, path, jobs string) error {
	return configure(ctx, path, "jobs", jobs, ApplyJobs, ReadBackJobs)
}

// ConfigureCcacheSize sets the maximum size of the ccache and
// fails unless the change can be read back.
func ConfigureCcacheSize(ctx context.Context, path, size string) error {
	return configure(ctx, path, "ccacheSize", size, ApplyCcacheSize, ReadBackCcacheSize)
}

func configure(ctx context.Context, path, key, value string, apply func(string, string) error, readBack func(string, string) (bool, error)) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path, key, value)

	ok, err := readBack(path, value)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error(err, "failed to read configuration")
		return err
	}
	if ok {
		log.V(2).Info("configuration is up to date")
		return nil
	}
	log.V(1).Info("updating configuration")
	if err := apply(path, value); err != nil {
		log.Error(err, "failed to write configuration")
		return err
	}
	ok, err = readBack(path, value)
	if err != nil {
		log.Error(err, "failed to read configuration")
		return err
	}
	if !ok {
		err = fmt.Errorf("%w: %s=%s in %s", ErrNotApplied, key, value, path)
		log.Error(err, "failed to configure")
		return err
	}
	return nil
}

// setLine replaces every line starting with prefix with
// prefix+value, or appends it if there is none.
func setLine(path, prefix, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}
	var found bool
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			lines[i] = prefix + value
			found = true
		}
	}
	if !found {
		lines = append(lines, prefix+value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func hasLine(path, prefix, value string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	for _, l := range strings.Split(string(data), "\n") {
		if l == prefix+value {
			return true, nil
		}
	}
	return false, nil
}

package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-getter"
)

type Downloader struct {
	cacheDir string
}

func NewDownloader(cacheDir string) (*Downloader, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}
	return &Downloader{cacheDir: cacheDir}, nil
}

// Download fetches src into the cache directory as name,
// replacing any previous download. Archives are stored as-is.
func (d *Downloader) Download(ctx context.Context, src, name string) (string, error) {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("downloading file", "src", src)

	dst := filepath.Join(d.cacheDir, name)
	log.V(1).Info("preparing to download file", "dst", dst)

	// go-getter resumes into an existing file, so always start
	// from an empty temp file and move it into place afterwards
	tmp := dst + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error(err, "failed to remove stale download", "file", tmp)
		return "", err
	}

	client := &getter.Client{
		Ctx:             ctx,
		Src:             src,
		Dst:             tmp,
		Mode:            getter.ClientModeFile,
		DisableSymlinks: true,
		// APKINDEX.tar.gz must not be unpacked
		Decompressors: map[string]getter.Decompressor{},
	}
	if err := client.Get(); err != nil {
		log.Error(err, "failed to download file")
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		log.Error(err, "failed to update file permissions", "file", tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		log.Error(err, "failed to move download into place", "file", dst)
		return "", err
	}

	return dst, nil
}

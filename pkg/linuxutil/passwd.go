package linuxutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

var ErrUnknownIdentity = errors.New("unknown user or group")

// LookupUser resolves the uid of username and the gid of the
// group with the same name from the passwd and group databases
// under rootfs.
func LookupUser(ctx context.Context, rootfs, username string) (int, int, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("rootfs", rootfs, "username", username)

	uid, err := lookupID(filepath.Join(rootfs, "etc", "passwd"), username)
	if err != nil {
		log.Error(err, "failed to resolve user")
		return -1, -1, err
	}
	gid, err := lookupID(filepath.Join(rootfs, "etc", "group"), username)
	if err != nil {
		log.Error(err, "failed to resolve group")
		return -1, -1, err
	}
	log.V(3).Info("resolved identity", "uid", uid, "gid", gid)
	return uid, gid, nil
}

// lookupID returns the numeric id (third field) of name in a
// colon-separated database such as /etc/passwd or /etc/group.
func lookupID(path, name string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	br := bufio.NewScanner(f)
	for br.Scan() {
		fields := strings.Split(br.Text(), ":")
		if len(fields) < 3 || fields[0] != name {
			continue
		}
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			return -1, fmt.Errorf("parsing id of %s in %s: %w", name, path, err)
		}
		return id, nil
	}
	if err := br.Err(); err != nil {
		return -1, err
	}
	return -1, fmt.Errorf("%w: %s in %s", ErrUnknownIdentity, name, path)
}

// ChownR changes the ownership of path and everything below it.
// Symbolic links are changed themselves rather than their targets.
func ChownR(path string, uid, gid int) error {
	return filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Lchown(p, uid, gid); err != nil {
			return fmt.Errorf("os.Lchown(%q): %w", p, err)
		}
		return nil
	})
}

package chroot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/alessio/shellescape"
	"github.com/go-logr/logr"
)

// Runner executes commands inside an existing chroot. Creating,
// mounting and tearing down the chroot is the caller's concern.
type Runner interface {
	// Root runs argv as root inside the chroot at root, with dir
	// as the working directory (relative to the chroot).
	Root(ctx context.Context, root string, argv []string, dir string) error
	// User runs argv as the unprivileged build user.
	User(ctx context.Context, root string, argv []string, dir string) error
}

// ErrNotRoot is returned when the process lacks the privileges
// needed to work on chroots.
var ErrNotRoot = errors.New("must be run as root")

// CheckPrivileges fails unless the process runs as root. Chroots
// and the files inside them are owned by root, so the host side
// of every build writes as root as well.
func CheckPrivileges() error {
	return checkEUID(os.Geteuid())
}

func checkEUID(euid int) error {
	if euid != 0 {
		return fmt.Errorf("%w (euid %d), try again with sudo", ErrNotRoot, euid)
	}
	return nil
}

// HostPath returns the host path of p inside the chroot at root.
func HostPath(root, p string) string {
	return filepath.Join(root, filepath.Clean("/"+p))
}

// Exec is a Runner that shells out to chroot(8). The process must
// already be root, see CheckPrivileges.
type Exec struct {
	BuildUser string
}

func NewExec(buildUser string) *Exec {
	return &Exec{BuildUser: buildUser}
}

func (e *Exec) Root(ctx context.Context, root string, argv []string, dir string) error {
	return e.run(ctx, root, []string{"/bin/sh", "-c", script(argv, dir)})
}

func (e *Exec) User(ctx context.Context, root string, argv []string, dir string) error {
	return e.run(ctx, root, []string{"su", e.BuildUser, "-s", "/bin/sh", "-c", script(argv, dir)})
}

func (e *Exec) run(ctx context.Context, root string, argv []string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("chroot", root)

	args := append([]string{"chroot", root}, argv...)
	log.V(1).Info("running command", "cmd", shellescape.QuoteCommand(args))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s in %s: %w", argv[0], root, err)
	}
	return nil
}

// script builds the shell snippet that changes to dir and then
// replaces itself with argv.
func script(argv []string, dir string) string {
	if dir == "" {
		dir = "/"
	}
	return "cd " + shellescape.Quote(dir) + " && exec " + shellescape.QuoteCommand(argv)
}

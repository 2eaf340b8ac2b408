package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/alessio/shellescape"
	"github.com/go-logr/logr"
)

// ErrSession is returned when a remote command or copy exits
// with a non-zero status.
var ErrSession = errors.New("remote session failed")

// Transport copies files to and runs scripts on a Target.
type Transport interface {
	Copy(ctx context.Context, target Target, files []string, dir string) error
	Run(ctx context.Context, target Target, script string) error
}

// Exec is a Transport backed by scp(1) and ssh(1). Stdin is
// forwarded so that sudo on the device can read the password.
type Exec struct{}

func (Exec) Copy(ctx context.Context, target Target, files []string, dir string) error {
	args := append([]string{"-P", target.Port}, files...)
	args = append(args, target.String()+":"+dir)
	return run(ctx, "scp", args)
}

func (Exec) Run(ctx context.Context, target Target, script string) error {
	return run(ctx, "ssh", []string{"-t", "-p", target.Port, target.String(), script})
}

func run(ctx context.Context, name string, args []string) error {
	log := logr.FromContextOrDiscard(ctx)
	log.V(1).Info("running command", "cmd", shellescape.QuoteCommand(append([]string{name}, args...)))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSession, name, err)
	}
	return nil
}

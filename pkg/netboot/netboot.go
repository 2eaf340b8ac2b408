package netboot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"

	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/chroot"
)

const (
	dirNetboot = "/mnt/pmbootstrap/netboot"
	dirRootfs  = "/home/pmos/rootfs"
)

var ErrNoRootfs = errors.New("rootfs has not been generated")

// Server exports the rootfs image of a device over NBD whenever
// the device brings up its USB network.
type Server struct {
	Spec   *v1.WorkspaceSpec
	Runner chroot.Runner
	// Replace overwrites an existing netboot image with the
	// current rootfs.
	Replace bool
	// Interval between attempts to bind the probe address.
	Interval time.Duration
	// Cooldown after nbd-server exits before waiting for the
	// device again.
	Cooldown time.Duration

	listen func(network, address string) (net.Listener, error)
}

func NewServer(spec *v1.WorkspaceSpec, runner chroot.Runner) *Server {
	return &Server{
		Spec:     spec,
		Runner:   runner,
		Interval: 500 * time.Millisecond,
		Cooldown: 5 * time.Second,
		listen:   net.Listen,
	}
}

// WaitForDevice blocks until the netboot address can be bound,
// which happens once the device has brought up its interface.
// Only EADDRNOTAVAIL is retried. It returns early if ctx is
// cancelled.
func (s *Server) WaitForDevice(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)
	addr := net.JoinHostPort(s.Spec.Netboot.IP, strconv.Itoa(s.Spec.Netboot.ProbePort))

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		l, err := s.listen("tcp", addr)
		if err != nil {
			if errors.Is(err, unix.EADDRNOTAVAIL) {
				return err
			}
			return backoff.Permanent(err)
		}
		return l.Close()
	}
	notify := func(err error, d time.Duration) {
		log.V(4).Info("address not available yet", "addr", addr, "retry", d)
	}

	// the constant backoff never stops on its own, so the loop
	// only ends through op: bound, fatal error or ctx done
	err := backoff.RetryNotify(op, backoff.NewConstantBackOff(s.Interval), notify)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		log.Error(err, "failed to bind probe address", "addr", addr)
		return err
	}
	return nil
}

// Serve prepares the netboot image and then serves it until ctx
// is cancelled, restarting nbd-server each time the device
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("device", s.Spec.Device)

	image, err := s.prepareImage(ctx)
	if err != nil {
		return err
	}

	root := s.Spec.ChrootNative()
	export := s.Spec.Netboot.IP + "@" + strconv.Itoa(s.Spec.Netboot.Port)
	for {
		log.Info("waiting for device to appear")
		if err := s.WaitForDevice(ctx); err != nil {
			return err
		}

		log.Info("nbd-server started, press Ctrl+C to stop", "export", export)
		// nbd-server exits when the device goes away, so its
		// status carries no meaning
		if err := s.Runner.Root(ctx, root, []string{"nbd-server", export, image, "-d"}, ""); err != nil {
			log.V(1).Info("nbd-server exited", "error", err.Error())
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("nbd-server quit, connect your device again")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Cooldown):
		}
	}
}

// prepareImage copies the rootfs of the device into the netboot
// directory unless it is already there. It returns the chroot
// path of the image.
func (s *Server) prepareImage(ctx context.Context) (string, error) {
	log := logr.FromContextOrDiscard(ctx)
	root := s.Spec.ChrootNative()
	image := path.Join(dirNetboot, s.Spec.Device+".img")
	rootfs := path.Join(dirRootfs, s.Spec.Device+".img")

	if _, err := os.Stat(chroot.HostPath(root, image)); err == nil && !s.Replace {
		log.V(1).Info("using existing netboot image", "image", image)
		return image, nil
	}
	if _, err := os.Stat(chroot.HostPath(root, rootfs)); err != nil {
		err = fmt.Errorf("%w for %s, run the install first: %w", ErrNoRootfs, s.Spec.Device, err)
		log.Error(err, "failed to prepare netboot image")
		return "", err
	}
	log.Info("copying rootfs to netboot image", "rootfs", rootfs, "image", image)
	if err := s.Runner.Root(ctx, root, []string{"cp", rootfs, image}, ""); err != nil {
		log.Error(err, "failed to copy rootfs")
		return "", err
	}
	return image, nil
}

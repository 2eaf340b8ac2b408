package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/djcass44/pmbuild/pkg/netboot"
)

var netbootCmd = &cobra.Command{
	Use:   "netboot",
	Short: "Netboot utilities",
}

var netbootServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the device rootfs over NBD",
	Args:  cobra.NoArgs,
	RunE:  netbootServe,
}

const flagReplace = "replace"

func init() {
	netbootServeCmd.Flags().Bool(flagReplace, false, "replace the netboot image with the current rootfs")
	netbootCmd.AddCommand(netbootServeCmd)
}

func netbootServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	if e.spec.Device == "" {
		return errors.New("device is not set, use --device or the configuration file")
	}

	s := netboot.NewServer(e.spec, e.runner)
	s.Replace, _ = cmd.Flags().GetBool(flagReplace)

	err = s.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

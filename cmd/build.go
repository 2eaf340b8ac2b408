package cmd

import (
	"errors"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build PKGNAME...",
	Short: "build packages whose binaries are missing or out of date",
	Args:  cobra.MinimumNArgs(1),
	RunE:  buildPackages,
}

const (
	flagArch  = "arch"
	flagForce = "force"
)

func init() {
	buildCmd.Flags().String(flagArch, "", "target architecture (defaults to the native architecture)")
	buildCmd.Flags().BoolP(flagForce, "f", false, "build even if the binary is up to date")
}

func buildPackages(cmd *cobra.Command, args []string) error {
	log := logr.FromContextOrDiscard(cmd.Context())

	arch, _ := cmd.Flags().GetString(flagArch)
	force, _ := cmd.Flags().GetBool(flagForce)

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	if e.spec.Aports == "" {
		return errors.New("aports path is not set, use --aports or the configuration file")
	}

	for _, name := range args {
		if err := e.builder.Build(cmd.Context(), name, arch, force); err != nil {
			return err
		}
	}
	log.Info("done", "packages", args)
	return nil
}

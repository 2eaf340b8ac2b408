package cmd

import (
	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Mirror index utilities",
}

var repoUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "download the indices of the configured mirrors",
	Args:  cobra.NoArgs,
	RunE:  repoUpdate,
}

func init() {
	repoUpdateCmd.Flags().StringSlice(flagArch, nil, "architectures to update (defaults to the native architecture)")
	repoCmd.AddCommand(repoUpdateCmd)
}

func repoUpdate(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}

	arches, _ := cmd.Flags().GetStringSlice(flagArch)
	if len(arches) == 0 {
		arches = []string{e.spec.NativeArch}
	}
	for _, arch := range arches {
		if err := e.updater.Update(cmd.Context(), arch); err != nil {
			return err
		}
	}
	return nil
}

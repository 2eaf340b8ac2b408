package cmd

import (
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "regenerate and sign the local repository index",
	Args:  cobra.NoArgs,
	RunE:  index,
}

func init() {
	indexCmd.Flags().String(flagArch, "", "architecture to reindex (defaults to all)")
}

func index(cmd *cobra.Command, _ []string) error {
	arch, _ := cmd.Flags().GetString(flagArch)

	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}
	return e.publisher.Publish(cmd.Context(), arch)
}

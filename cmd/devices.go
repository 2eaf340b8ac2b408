package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/djcass44/pmbuild/pkg/aports"
	"github.com/djcass44/pmbuild/pkg/config"
)

var devicesCmd = &cobra.Command{
	Use:   "devices [CODENAME]",
	Short: "list the devices in the aports checkout",
	Long:  "Lists the devices in the aports checkout. Given a codename, prints the path of its deviceinfo instead.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  devices,
}

const (
	flagVendor       = "vendor"
	flagVendors      = "vendors"
	flagUnmaintained = "unmaintained"

	fileDeviceInfo = "deviceinfo"
)

func init() {
	devicesCmd.Flags().String(flagVendor, "", "only list devices of this vendor")
	devicesCmd.Flags().Bool(flagVendors, false, "list vendors instead of devices")
	devicesCmd.Flags().Bool(flagUnmaintained, false, "include unmaintained devices")
}

func devices(cmd *cobra.Command, args []string) error {
	ws, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	if ws.Spec.Aports == "" {
		return errors.New("aports path is not set, use --aports or the configuration file")
	}
	tree := aports.NewTree(ws.Spec.Aports)

	if len(args) == 1 {
		path, err := deviceInfo(tree, args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	}

	vendor, _ := cmd.Flags().GetString(flagVendor)
	listVendors, _ := cmd.Flags().GetBool(flagVendors)
	unmaintained, _ := cmd.Flags().GetBool(flagUnmaintained)

	var out []string
	if listVendors {
		out, err = tree.ListVendors()
	} else {
		out, err = tree.ListCodenames(vendor, unmaintained)
	}
	if err != nil {
		return err
	}
	for _, s := range out {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}

func deviceInfo(tree *aports.Tree, codename string) (string, error) {
	path, err := tree.FindDevice(codename, fileDeviceInfo)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("unknown device: %s", codename)
	}
	return path, nil
}

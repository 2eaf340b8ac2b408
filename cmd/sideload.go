package cmd

import (
	"github.com/spf13/cobra"

	"github.com/djcass44/pmbuild/pkg/remote"
	"github.com/djcass44/pmbuild/pkg/sideload"
)

var sideloadCmd = &cobra.Command{
	Use:   "sideload PKGNAME...",
	Short: "build packages and install them on a device over ssh",
	Args:  cobra.MinimumNArgs(1),
	RunE:  sideloadPackages,
}

const (
	flagUser       = "user"
	flagHost       = "host"
	flagPort       = "port"
	flagInstallKey = "install-key"
	flagReinstall  = "reinstall"
)

func init() {
	sideloadCmd.Flags().String(flagArch, "", "architecture of the device (defaults to the native architecture)")
	sideloadCmd.Flags().String(flagUser, "", "ssh user on the device")
	sideloadCmd.Flags().String(flagHost, "", "ssh host of the device")
	sideloadCmd.Flags().String(flagPort, "", "ssh port of the device")
	sideloadCmd.Flags().Bool(flagInstallKey, false, "install the local signing key on the device")
	sideloadCmd.Flags().Bool(flagReinstall, false, "remove the packages before installing them")
}

func sideloadPackages(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd.Context())
	if err != nil {
		return err
	}

	target := remote.Target{
		User: e.spec.Sideload.User,
		Host: e.spec.Sideload.Host,
		Port: e.spec.Sideload.Port,
	}
	if v, _ := cmd.Flags().GetString(flagUser); v != "" {
		target.User = v
	}
	if v, _ := cmd.Flags().GetString(flagHost); v != "" {
		target.Host = v
	}
	if v, _ := cmd.Flags().GetString(flagPort); v != "" {
		target.Port = v
	}
	arch, _ := cmd.Flags().GetString(flagArch)
	copyKey, _ := cmd.Flags().GetBool(flagInstallKey)
	reinstall, _ := cmd.Flags().GetBool(flagReinstall)

	p := &sideload.Pipeline{
		Spec:      e.spec,
		Lookup:    e.lookup,
		Builder:   e.builder,
		Transport: remote.Exec{},
	}
	return p.Run(cmd.Context(), sideload.Request{
		Packages:  args,
		Arch:      arch,
		CopyKey:   copyKey,
		Reinstall: reinstall,
		Target:    target,
	})
}

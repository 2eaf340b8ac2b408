package cmd

import (
	"context"
	"os"

	"github.com/djcass44/go-utils/logging"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/djcass44/pmbuild/cmd/cache"
	v1 "github.com/djcass44/pmbuild/pkg/api/v1"
	"github.com/djcass44/pmbuild/pkg/config"
)

var command = &cobra.Command{
	Use:          "pmbuild",
	Short:        "build and deploy postmarketOS packages",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel, _ := cmd.Flags().GetInt(flagLogLevel)

		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.Level(logLevel * -1))

		_, ctx := logging.NewZap(cmd.Context(), zc)
		log := logr.FromContextOrDiscard(ctx).WithValues("run", uuid.NewString())
		ctx = logr.NewContext(ctx, log)

		ws, err := loadWorkspace(ctx, cmd)
		if err != nil {
			return err
		}
		log.V(1).Info("loaded workspace", "work", ws.Spec.Work, "channel", ws.Spec.Channel)
		cmd.SetContext(config.NewContext(ctx, ws))
		return nil
	},
}

const (
	flagLogLevel = "v"
	flagConfig   = "config"
	flagWork     = "work"
	flagAports   = "aports"
	flagDevice   = "device"
)

func init() {
	command.PersistentFlags().Int(flagLogLevel, 0, "log level. Higher is more")
	command.PersistentFlags().StringP(flagConfig, "c", "", "path to a workspace configuration file")
	command.PersistentFlags().String(flagWork, "", "work directory (defaults to user cache dir)")
	command.PersistentFlags().String(flagAports, "", "path to the aports checkout")
	command.PersistentFlags().String(flagDevice, "", "device codename")

	_ = command.MarkPersistentFlagFilename(flagConfig, ".yaml", ".yml", ".json")

	command.AddCommand(buildCmd, indexCmd, sideloadCmd, netbootCmd, repoCmd, devicesCmd, cache.Command)
}

// loadWorkspace reads the configuration file and applies any
// values given on the command line over it.
func loadWorkspace(ctx context.Context, cmd *cobra.Command) (*v1.Workspace, error) {
	configPath, _ := cmd.Flags().GetString(flagConfig)

	ws, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}

	spec := v1.WorkspaceSpec{}
	spec.Work, _ = cmd.Flags().GetString(flagWork)
	spec.Aports, _ = cmd.Flags().GetString(flagAports)
	spec.Device, _ = cmd.Flags().GetString(flagDevice)
	config.Merge(&spec, ws.Spec)
	ws.Spec = spec

	return ws, nil
}

func Execute(version string) {
	command.Version = version
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

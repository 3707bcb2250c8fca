// Package commands implements the kseli CLI.
package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kseli/kseli-go/internal/broadcast"
	"github.com/kseli/kseli-go/internal/config"
	"github.com/kseli/kseli-go/internal/logging"
)

var (
	appCfg config.Config
	logger *zap.Logger

	// One bus per process; all sessions of this profile coordinate on it.
	bus = broadcast.NewBus()
)

func Execute() error {
	root := &cobra.Command{
		Use:          "kseli",
		Short:        "Ephemeral end-to-end encrypted chat rooms",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			appCfg = cfg

			logger, err = logging.NewLogger(cfg.LogLevel)
			return err
		},
	}

	root.AddCommand(createCmd(), joinCmd())
	return root.Execute()
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/iniwex5/shaiya-go/pkg/config"
	"github.com/iniwex5/shaiya-go/pkg/logger"
)

var (
	cfgPath string
	cfg     *config.Config
)

func loadConfig() error {
	var err error
	if cfgPath == "" {
		cfg, err = config.Load([]byte{})
	} else {
		cfg, err = config.LoadFile(cfgPath)
	}
	if err != nil {
		return err
	}
	return logger.Init(cfg.Logging.Level, cfg.Logging.Format)
}

func Execute() error {
	root := &cobra.Command{
		Use:          "shaiyactl",
		Short:        "Shaiya login session tooling",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "TOML config file (defaults apply when empty)")

	root.AddCommand(
		keygenCmd(),
		hashpwCmd(),
		genconfigCmd(),
		serveCmd(),
		dialCmd(),
		recordCmd(),
		accountCmd(),
		archiveCmd(),
	)
	return root.Execute()
}

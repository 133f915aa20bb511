package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gadgets/internal/config"
	"gadgets/internal/db"
	"gadgets/internal/logger"
)

type VersionInfo struct {
	Version string
	Commit  string
}

// options are shared by all subcommands and filled by the root pre-run.
type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

var opts options

func NewRootCommand(info VersionInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gadgets",
		Short:         "Gadget administration server",
		Long:          "Serves the gadget administration pages and manages their database and users.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	return cmd
}

// bootstrap opens the logger and the database described by the loaded config.
func bootstrap() (*zap.Logger, *gorm.DB, error) {
	log, err := logger.New(opts.cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	gdb, err := db.Open(opts.cfg.Database, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return log, gdb, nil
}

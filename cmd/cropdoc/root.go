package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cropdoc/internal/config"
	"cropdoc/internal/logging"
)

type rootOptions struct {
	logLevel string
	cfg      *config.Config
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cropdoc",
		Short:         "Plant photo diagnosis service",
		Long:          "cropdoc checks a field photo, diagnoses the crop problem, and plans what to do about it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			level := cfg.LogLevel
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			log, err := logging.New(level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.cfg = cfg
			opts.log = log.With(zap.String("env", cfg.Env))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	cmd.AddCommand(newServeCmd(opts), newDiagnoseCmd(opts))
	return cmd
}

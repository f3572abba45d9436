// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rapidaai/interview/api/interview-api/config"
	"github.com/rapidaai/interview/pkg/commons"
)

// Version is stamped at build time with -ldflags "-X ...interview_cli.Version=".
var Version = "dev"

type rootOptions struct {
	envPath string
	console bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "interview-api",
		Short:         "Run and operate the virtual interview service",
		Long:          "Hosts AI-led voice interviews: prepares questions, drives the spoken dialogue with the candidate's browser, records the session and stores the results.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&opts.envPath, "env", "", "path of the env file (overrides ENV_PATH)")
	rootCmd.PersistentFlags().BoolVar(&opts.console, "console", true, "mirror logs to stdout")

	rootCmd.AddCommand(NewServeCmd(opts))
	rootCmd.AddCommand(NewMigrateCmd(opts))
	rootCmd.AddCommand(NewQuestionsCmd(opts))
	rootCmd.AddCommand(NewTranscodeCmd(opts))
	return rootCmd
}

// load reads the application config and opens the service logger.
func (o *rootOptions) load() (*config.AppConfig, commons.Logger, error) {
	if o.envPath != "" {
		if err := os.Setenv("ENV_PATH", o.envPath); err != nil {
			return nil, nil, err
		}
	}
	vConfig, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		return nil, nil, err
	}

	loggerOpts := []commons.Option{commons.Name(cfg.Name), commons.Level(cfg.LogLevel)}
	if cfg.LogPath != "" {
		loggerOpts = append(loggerOpts, commons.Path(cfg.LogPath))
	}
	if o.console {
		loggerOpts = append(loggerOpts, commons.EnableConsole())
	}
	logger, err := commons.NewApplicationLogger(loggerOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

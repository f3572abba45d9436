// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := openDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Disconnect(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Database.Driver)
			return nil
		},
	}
}

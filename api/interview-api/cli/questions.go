// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	internal_oracle "github.com/rapidaai/interview/api/interview-api/internal/oracle"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

// NewQuestionsCmd previews the question list an interview for a role would get.
func NewQuestionsCmd(opts *rootOptions) *cobra.Command {
	var role string
	var count int
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Generate the question list for a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" {
				return errors.New("--role is required")
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if count <= 0 {
				count = cfg.Questions.Count
			}

			var oracle internal_type.ResponseOracle
			if cfg.Questions.ServiceURL == "" {
				oracle, err = internal_oracle.NewResponseOracle(cmd.Context(), logger, cfg.Oracle)
				if err != nil {
					logger.Warnw("Oracle unavailable, using built-in questions", "error", err)
				}
			}

			questions, err := newQuestionSource(cfg, logger, oracle).GenerateQuestions(cmd.Context(), role, count)
			if err != nil {
				return fmt.Errorf("failed to generate questions: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(questions)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "job title the questions are for")
	cmd.Flags().IntVar(&count, "count", 0, "number of questions (default from config)")
	return cmd
}

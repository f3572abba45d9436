// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_cli

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	internal_recording_transcode "github.com/rapidaai/interview/api/interview-api/internal/recording/transcode"
	internal_store "github.com/rapidaai/interview/api/interview-api/internal/store"
)

// NewTranscodeCmd stores a recording that never reached the upload endpoint,
// for example one the candidate downloaded after a failed upload.
func NewTranscodeCmd(opts *rootOptions) *cobra.Command {
	var interviewID, applicationID string
	var attach bool
	cmd := &cobra.Command{
		Use:   "transcode <file>",
		Short: "Convert a recording to MP4 and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interviewID == "" {
				return fmt.Errorf("--interview is required")
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open recording: %w", err)
			}
			defer file.Close()

			recordings, err := newRecordingService(cfg, logger)
			if err != nil {
				return err
			}
			ref, err := recordings.TranscodeAndStore(cmd.Context(), internal_recording_transcode.RawFile{
				InterviewID:   interviewID,
				ApplicationID: applicationID,
				FileName:      filepath.Base(args[0]),
				ContentType:   mime.TypeByExtension(filepath.Ext(args[0])),
				Body:          file,
				ReceivedAt:    time.Now(),
			})
			if err != nil {
				return err
			}

			if attach {
				db, err := openDatabase(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer db.Disconnect(cmd.Context())
				n, err := internal_store.NewResultStore(db, logger).AttachRecording(cmd.Context(), interviewID, ref.Location)
				if err != nil {
					return fmt.Errorf("recording stored at %s but not attached: %w", ref.Location, err)
				}
				logger.Infow("Recording attached", "interviewId", interviewID, "results", n)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ref)
		},
	}
	cmd.Flags().StringVar(&interviewID, "interview", "", "interview the recording belongs to")
	cmd.Flags().StringVar(&applicationID, "application", "", "application the interview belongs to")
	cmd.Flags().BoolVar(&attach, "attach", true, "attach the stored recording to the interview's results")
	return cmd
}

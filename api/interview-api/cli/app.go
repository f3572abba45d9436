// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_cli

import (
	"context"
	"fmt"

	interviewApi "github.com/rapidaai/interview/api/interview-api/api/interview"
	"github.com/rapidaai/interview/api/interview-api/config"
	internal_media "github.com/rapidaai/interview/api/interview-api/internal/media"
	internal_oracle "github.com/rapidaai/interview/api/interview-api/internal/oracle"
	internal_questions "github.com/rapidaai/interview/api/interview-api/internal/questions"
	internal_recording "github.com/rapidaai/interview/api/interview-api/internal/recording"
	internal_recording_cloud "github.com/rapidaai/interview/api/interview-api/internal/recording/cloud"
	internal_recording_transcode "github.com/rapidaai/interview/api/interview-api/internal/recording/transcode"
	internal_session "github.com/rapidaai/interview/api/interview-api/internal/session"
	internal_store "github.com/rapidaai/interview/api/interview-api/internal/store"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/connectors"
	"github.com/rapidaai/interview/pkg/storages"
)

// app owns the process-wide connectors and collaborators.
type app struct {
	cfg    *config.AppConfig
	logger commons.Logger
	db     connectors.DatabaseConnector
	redis  connectors.RedisConnector
	deps   interviewApi.Dependencies
}

// openDatabase connects and migrates the configured database.
func openDatabase(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) (connectors.DatabaseConnector, error) {
	db, err := connectors.NewDatabaseConnector(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	if err := internal_store.Migrate(ctx, cfg.Database, db, logger); err != nil {
		_ = db.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

// newRecordingService stores uploads in the asset store, converting them
// to MP4 when ffmpeg is available.
func newRecordingService(cfg *config.AppConfig, logger commons.Logger) (internal_recording_transcode.Service, error) {
	storage, err := storages.NewStorage(cfg.AssetStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset storage: %w", err)
	}
	var transcoder internal_recording_transcode.Transcoder = internal_recording_transcode.NewFFmpegTranscoder(cfg.Upload.FFmpegBinary)
	if err := transcoder.Check(); err != nil {
		logger.Warnw("ffmpeg unavailable, recordings are stored as uploaded", "binary", cfg.Upload.FFmpegBinary, "error", err)
		transcoder = nil
	}
	return internal_recording_transcode.NewService(logger, storage, transcoder, cfg.Upload.WorkDir, cfg.Upload.TranscodeTimeout), nil
}

// newQuestionSource prefers the question service and falls back to the
// built-in list whenever generation fails.
func newQuestionSource(cfg *config.AppConfig, logger commons.Logger, oracle internal_type.ResponseOracle) internal_type.QuestionSource {
	var primary internal_type.QuestionSource
	if cfg.Questions.ServiceURL != "" {
		primary = internal_questions.NewHTTPSource(logger, cfg.Questions.ServiceURL, cfg.Questions.Timeout)
	} else if oracle != nil {
		primary = internal_questions.NewOracleSource(logger, oracle)
	}
	return internal_questions.WithFallback(logger, primary, cfg.Questions.Timeout)
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) (*app, error) {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: db}

	tokens, err := internal_media.NewTokenIssuer(cfg.Secret, cfg.Name, cfg.TokenTTL)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	oracle, err := internal_oracle.NewResponseOracle(ctx, logger, cfg.Oracle)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create response oracle: %w", err)
	}

	recordings, err := newRecordingService(cfg, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	var uploader internal_type.RecordingUploader
	if cfg.Upload.BaseURL != "" {
		uploader = internal_recording.NewHTTPUploader(logger, cfg.Upload.BaseURL, cfg.Upload.AuthToken, cfg.Upload.Timeout)
	}

	var cloud internal_type.CloudRecordingService
	if cfg.CloudRecording.Enabled {
		cloud = a.newCloudRecorder(ctx, tokens)
	}

	a.deps = interviewApi.Dependencies{
		Registry:   internal_session.NewRegistry(logger),
		Media:      internal_media.NewSessionManager(logger, nil),
		Interviews: internal_store.NewInterviewStore(db, logger),
		Results:    internal_store.NewResultStore(db, logger),
		Questions:  newQuestionSource(cfg, logger, oracle),
		Oracle:     oracle,
		Tokens:     tokens,
		Cloud:      cloud,
		Uploader:   uploader,
		Recordings: recordings,
	}
	return a, nil
}

// newCloudRecorder keeps recording handles in redis so a restarted process
// can still stop what it started. Without redis the handles live in memory.
func (a *app) newCloudRecorder(ctx context.Context, tokens internal_media.TokenIssuer) internal_type.CloudRecordingService {
	var handles internal_recording_cloud.HandleStore
	redis := connectors.NewRedisConnector(a.cfg.Redis, a.logger)
	if err := redis.Connect(ctx); err != nil {
		a.logger.Warnw("Redis unavailable, cloud recording handles kept in memory", "error", err)
		handles = internal_recording_cloud.NewMemoryHandleStore()
	} else {
		a.redis = redis
		handles = internal_recording_cloud.NewRedisHandleStore(redis.GetConnection(), a.cfg.CloudRecording.HandleTTL)
	}

	return internal_recording_cloud.NewClient(a.logger, a.cfg.CloudRecording.Provider, handles, func(channel, uid string) (string, error) {
		return tokens.Issue(channel, channel, uid)
	})
}

func (a *app) Close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Disconnect(ctx); err != nil {
			a.logger.Warnw("Failed to disconnect redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Disconnect(ctx); err != nil {
			a.logger.Warnw("Failed to disconnect database", "error", err)
		}
	}
	_ = a.logger.Sync()
}

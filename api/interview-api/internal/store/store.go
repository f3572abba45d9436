// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	internal_entity "github.com/rapidaai/interview/api/interview-api/internal/entity"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/connectors"
)

var ErrResultNotFound = errors.New("interview result not found")

// ResultStore keeps finished interviews. It is the session's result sink, so
// Persist must tolerate being called once per session from a background
// goroutine after the media side has already torn down.
type ResultStore interface {
	internal_type.ResultSink

	// Get returns the row written by a single session.
	Get(ctx context.Context, sessionID string) (*internal_entity.InterviewResult, error)

	// ListByInterview returns every session recorded for an interview, newest first.
	ListByInterview(ctx context.Context, interviewID string) ([]*internal_entity.InterviewResult, error)

	// AttachRecording sets the recording reference on every session of the
	// interview. Browser uploads can land before or after the session row
	// exists, so zero affected rows is not an error.
	AttachRecording(ctx context.Context, interviewID, ref string) (int64, error)
}

type resultStore struct {
	db     connectors.DatabaseConnector
	logger commons.Logger
}

func NewResultStore(db connectors.DatabaseConnector, logger commons.Logger) ResultStore {
	return &resultStore{
		db:     db,
		logger: logger,
	}
}

// Persist upserts on session id so a retried hand-off never duplicates rows.
func (s *resultStore) Persist(ctx context.Context, result *internal_type.InterviewResult) error {
	if result == nil {
		return fmt.Errorf("failed to persist interview result: nil result")
	}
	start := time.Now()
	row := internal_entity.FromResult(result)
	row.UpdatedDate = time.Now()

	db := s.db.DB(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "end_reason", "transcript", "answers",
			"recording_ref", "cloud_recorded", "ended_at", "updated_date",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to persist interview result %s: %w", result.SessionID, err)
	}

	s.logger.Infof("persisted interview result: interview=%s, session=%s, status=%s, answers=%d",
		result.InterviewID, result.SessionID, result.Status, len(result.Answers))
	s.logger.Benchmark("store.Persist", time.Since(start))
	return nil
}

func (s *resultStore) Get(ctx context.Context, sessionID string) (*internal_entity.InterviewResult, error) {
	db := s.db.DB(ctx)
	var row internal_entity.InterviewResult
	if err := db.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrResultNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get interview result %s: %w", sessionID, err)
	}
	s.logger.Debugf("resolved interview result: session=%s, status=%s", row.SessionID, row.Status)
	return &row, nil
}

func (s *resultStore) ListByInterview(ctx context.Context, interviewID string) ([]*internal_entity.InterviewResult, error) {
	db := s.db.DB(ctx)
	var rows []*internal_entity.InterviewResult
	if err := db.Where("interview_id = ?", interviewID).
		Order("created_date DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list interview results %s: %w", interviewID, err)
	}
	return rows, nil
}

func (s *resultStore) AttachRecording(ctx context.Context, interviewID, ref string) (int64, error) {
	db := s.db.DB(ctx)
	tx := db.Model(&internal_entity.InterviewResult{}).
		Where("interview_id = ?", interviewID).
		Updates(map[string]interface{}{
			"recording_ref": ref,
			"updated_date":  time.Now(),
		})
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to attach recording to interview %s: %w", interviewID, tx.Error)
	}
	s.logger.Infof("attached recording: interview=%s, rows=%d", interviewID, tx.RowsAffected)
	return tx.RowsAffected, nil
}

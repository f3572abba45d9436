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

	internal_entity "github.com/rapidaai/interview/api/interview-api/internal/entity"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/connectors"
)

var (
	ErrInterviewNotFound     = errors.New("interview not found")
	ErrInterviewNotClaimable = errors.New("interview not found or already claimed")
)

// InterviewStore keeps prepared interviews between their creation over HTTP
// and the talk connection that runs them. Rows are never deleted; they move
// pending -> claimed -> completed|failed.
type InterviewStore interface {
	// Save stores a prepared interview, generating its id when empty.
	Save(ctx context.Context, interview *internal_entity.Interview) (string, error)

	// Get reads an interview regardless of its status.
	Get(ctx context.Context, interviewID string) (*internal_entity.Interview, error)

	// Claim atomically moves a pending interview to claimed. Only one
	// concurrent caller wins.
	Claim(ctx context.Context, interviewID string) (*internal_entity.Interview, error)

	// Complete records how the claimed interview ended.
	Complete(ctx context.Context, interviewID, status string) error
}

type interviewStore struct {
	db     connectors.DatabaseConnector
	logger commons.Logger
}

func NewInterviewStore(db connectors.DatabaseConnector, logger commons.Logger) InterviewStore {
	return &interviewStore{
		db:     db,
		logger: logger,
	}
}

func (s *interviewStore) Save(ctx context.Context, interview *internal_entity.Interview) (string, error) {
	if interview.Status == "" {
		interview.Status = internal_entity.InterviewPending
	}

	db := s.db.DB(ctx)
	if err := db.Create(interview).Error; err != nil {
		return "", fmt.Errorf("failed to save interview %s: %w", interview.InterviewID, err)
	}

	s.logger.Infof("saved interview: interviewId=%s, role=%s, questions=%d",
		interview.InterviewID, interview.RoleTitle, len(interview.Questions))
	return interview.InterviewID, nil
}

func (s *interviewStore) Get(ctx context.Context, interviewID string) (*internal_entity.Interview, error) {
	db := s.db.DB(ctx)
	var interview internal_entity.Interview
	if err := db.Where("interview_id = ?", interviewID).First(&interview).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInterviewNotFound, interviewID)
		}
		return nil, fmt.Errorf("failed to get interview %s: %w", interviewID, err)
	}

	s.logger.Debugf("resolved interview: interviewId=%s, status=%s", interview.InterviewID, interview.Status)
	return &interview, nil
}

func (s *interviewStore) Claim(ctx context.Context, interviewID string) (*internal_entity.Interview, error) {
	db := s.db.DB(ctx)

	result := db.Model(&internal_entity.Interview{}).
		Where("interview_id = ? AND status = ?", interviewID, internal_entity.InterviewPending).
		Updates(map[string]interface{}{
			"status":       internal_entity.InterviewClaimed,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim interview %s: %w", interviewID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInterviewNotClaimable, interviewID)
	}

	var interview internal_entity.Interview
	if err := db.Where("interview_id = ?", interviewID).First(&interview).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch claimed interview %s: %w", interviewID, err)
	}

	s.logger.Debugf("claimed interview: interviewId=%s", interview.InterviewID)
	return &interview, nil
}

func (s *interviewStore) Complete(ctx context.Context, interviewID, status string) error {
	if status != internal_entity.InterviewCompleted && status != internal_entity.InterviewFailed {
		return fmt.Errorf("status %q does not end an interview", status)
	}

	db := s.db.DB(ctx)
	result := db.Model(&internal_entity.Interview{}).
		Where("interview_id = ?", interviewID).
		Updates(map[string]interface{}{
			"status":       status,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete interview %s: %w", interviewID, result.Error)
	}

	s.logger.Debugf("completed interview: interviewId=%s, status=%s", interviewID, status)
	return nil
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

// InterviewResult is the persisted outcome of one interview session. A session
// writes exactly one row; re-running an interview produces a new row under the
// same interview id.
type InterviewResult struct {
	Id            string                           `json:"id" gorm:"column:id;type:varchar(36);primaryKey;<-:create"`
	InterviewID   string                           `json:"interviewId" gorm:"column:interview_id;type:varchar(64);not null;index"`
	SessionID     string                           `json:"sessionId" gorm:"column:session_id;type:varchar(64);not null;uniqueIndex"`
	ApplicationID string                           `json:"applicationId" gorm:"column:application_id;type:varchar(64);not null;default:''"`
	CandidateName string                           `json:"candidateName" gorm:"column:candidate_name;type:varchar(200);not null;default:''"`
	RoleTitle     string                           `json:"roleTitle" gorm:"column:role_title;type:varchar(200);not null;default:''"`
	Status        string                           `json:"status" gorm:"column:status;type:varchar(32);not null"`
	EndReason     string                           `json:"endReason" gorm:"column:end_reason;type:varchar(64);not null;default:''"`
	Transcript    []internal_type.ConversationTurn `json:"transcript" gorm:"column:transcript;type:text;serializer:json"`
	Answers       []internal_type.AnsweredQuestion `json:"answers" gorm:"column:answers;type:text;serializer:json"`
	RecordingRef  string                           `json:"recordingRef" gorm:"column:recording_ref;type:text;not null;default:''"`
	CloudRecorded bool                             `json:"cloudRecorded" gorm:"column:cloud_recorded;not null;default:false"`
	StartedAt     time.Time                        `json:"startedAt" gorm:"column:started_at;type:timestamp"`
	EndedAt       time.Time                        `json:"endedAt" gorm:"column:ended_at;type:timestamp"`
	CreatedDate   time.Time                        `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;<-:create"`
	UpdatedDate   time.Time                        `json:"updatedDate" gorm:"column:updated_date;type:timestamp;default:null"`
}

// CREATE TABLE interview_results (
//     id VARCHAR(36) PRIMARY KEY,
//     interview_id VARCHAR(64) NOT NULL,
//     session_id VARCHAR(64) NOT NULL UNIQUE,
//     application_id VARCHAR(64) NOT NULL DEFAULT '',
//     candidate_name VARCHAR(200) NOT NULL DEFAULT '',
//     role_title VARCHAR(200) NOT NULL DEFAULT '',
//     status VARCHAR(32) NOT NULL,
//     end_reason VARCHAR(64) NOT NULL DEFAULT '',
//     transcript TEXT,
//     answers TEXT,
//     recording_ref TEXT NOT NULL DEFAULT '',
//     cloud_recorded BOOLEAN NOT NULL DEFAULT FALSE,
//     started_at TIMESTAMP,
//     ended_at TIMESTAMP,
//     created_date TIMESTAMP NOT NULL DEFAULT NOW(),
//     updated_date TIMESTAMP
// );

func (InterviewResult) TableName() string {
	return "interview_results"
}

func (r *InterviewResult) BeforeCreate(tx *gorm.DB) (err error) {
	if r.Id == "" {
		r.Id = uuid.New().String()
	}
	if r.CreatedDate.IsZero() {
		r.CreatedDate = time.Now()
	}
	return nil
}

// FromResult maps the session hand-off payload onto a row.
func FromResult(result *internal_type.InterviewResult) *InterviewResult {
	return &InterviewResult{
		InterviewID:   result.InterviewID,
		SessionID:     result.SessionID,
		ApplicationID: result.ApplicationID,
		CandidateName: result.CandidateName,
		RoleTitle:     result.RoleTitle,
		Status:        string(result.Status),
		EndReason:     result.EndReason,
		Transcript:    result.Transcript,
		Answers:       result.Answers,
		RecordingRef:  result.RecordingRef,
		CloudRecorded: result.CloudRecorded,
		StartedAt:     result.StartedAt,
		EndedAt:       result.EndedAt,
	}
}

// ToResult converts the row back into the hand-off payload.
func (r *InterviewResult) ToResult() *internal_type.InterviewResult {
	return &internal_type.InterviewResult{
		InterviewID:   r.InterviewID,
		SessionID:     r.SessionID,
		ApplicationID: r.ApplicationID,
		CandidateName: r.CandidateName,
		RoleTitle:     r.RoleTitle,
		Status:        internal_type.SessionStatus(r.Status),
		EndReason:     r.EndReason,
		Transcript:    r.Transcript,
		Answers:       r.Answers,
		RecordingRef:  r.RecordingRef,
		CloudRecorded: r.CloudRecorded,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
	}
}

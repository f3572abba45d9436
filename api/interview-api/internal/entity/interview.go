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

// Interview status constants.
const (
	InterviewPending   = "pending"   // created, waiting for the candidate to connect
	InterviewClaimed   = "claimed"   // a talk connection owns the interview
	InterviewCompleted = "completed" // the session ended and its result was handed off
	InterviewFailed    = "failed"    // the session never got past its preconditions
)

// Interview is a prepared interview: who is interviewed, for which role and
// with which questions. The questions are generated once when the interview
// is created and never change afterwards.
//
// The status field provides atomic claiming: only one talk connection can
// move an interview from pending to claimed.
type Interview struct {
	Id            string                   `json:"id" gorm:"column:id;type:varchar(36);primaryKey;<-:create"`
	InterviewID   string                   `json:"interviewId" gorm:"column:interview_id;type:varchar(64);not null;uniqueIndex"`
	ApplicationID string                   `json:"applicationId" gorm:"column:application_id;type:varchar(64);not null;default:''"`
	CandidateName string                   `json:"candidateName" gorm:"column:candidate_name;type:varchar(200);not null;default:''"`
	RoleTitle     string                   `json:"roleTitle" gorm:"column:role_title;type:varchar(200);not null;default:''"`
	Questions     []internal_type.Question `json:"questions" gorm:"column:questions;type:text;serializer:json"`
	Status        string                   `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending"`
	CreatedDate   time.Time                `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;<-:create"`
	UpdatedDate   time.Time                `json:"updatedDate" gorm:"column:updated_date;type:timestamp;default:null"`
}

func (Interview) TableName() string {
	return "interviews"
}

func (i *Interview) BeforeCreate(tx *gorm.DB) (err error) {
	if i.Id == "" {
		i.Id = uuid.New().String()
	}
	if i.InterviewID == "" {
		i.InterviewID = uuid.New().String()
	}
	if i.CreatedDate.IsZero() {
		i.CreatedDate = time.Now()
	}
	return nil
}

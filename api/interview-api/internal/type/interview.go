// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"context"
	"time"
)

// Question is one interview prompt. It is fixed for the lifetime of a session.
type Question struct {
	ID         uint64 `json:"id"`
	Text       string `json:"text"`
	Category   string `json:"type"`
	Difficulty string `json:"difficulty"`
	JobField   string `json:"jobField,omitempty"`
}

type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// ConversationTurn is one utterance in the append-only interview transcript.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AnsweredQuestion records the answer accepted for a question.
type AnsweredQuestion struct {
	QuestionID   uint64    `json:"questionId"`
	QuestionText string    `json:"questionText"`
	AnswerText   string    `json:"answerText"`
	Timestamp    time.Time `json:"timestamp"`
}

type SessionStatus string

const (
	StatusInitializing   SessionStatus = "initializing"
	StatusAwaitingAnswer SessionStatus = "awaiting-answer"
	StatusSpeaking       SessionStatus = "speaking"
	StatusSubmitting     SessionStatus = "submitting"
	StatusCompleted      SessionStatus = "completed"
	StatusAborted        SessionStatus = "aborted"
)

// IsTerminal reports whether no further turns can happen.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// InterviewSessionState is a point-in-time copy of the dialogue aggregate.
type InterviewSessionState struct {
	SessionID            string             `json:"sessionId"`
	StartTime            time.Time          `json:"startTime"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	Questions            []Question         `json:"questions"`
	History              []ConversationTurn `json:"history"`
	Answers              []AnsweredQuestion `json:"answers"`
	Status               SessionStatus      `json:"status"`
	Remaining            time.Duration      `json:"remaining"`
}

// InterviewResult is the hand-off payload produced when a session finalizes.
type InterviewResult struct {
	InterviewID   string             `json:"interviewId"`
	SessionID     string             `json:"sessionId"`
	ApplicationID string             `json:"applicationId,omitempty"`
	CandidateName string             `json:"candidateName"`
	RoleTitle     string             `json:"roleTitle"`
	Status        SessionStatus      `json:"status"`
	EndReason     string             `json:"endReason"`
	Transcript    []ConversationTurn `json:"transcript"`
	Answers       []AnsweredQuestion `json:"answers"`
	RecordingRef  string             `json:"recordingRef,omitempty"`
	CloudRecorded bool               `json:"cloudRecorded"`
	StartedAt     time.Time          `json:"startedAt"`
	EndedAt       time.Time          `json:"endedAt"`
}

// =============================================================================
// Collaborators
// =============================================================================

// QuestionSource produces the question list before a session starts.
type QuestionSource interface {
	GenerateQuestions(ctx context.Context, roleTitle string, count int) ([]Question, error)
}

// ResponseOracle produces the interviewer's next utterance from the running
// transcript and an instruction for this turn.
type ResponseOracle interface {
	Name() string
	NextUtterance(ctx context.Context, history []ConversationTurn, instruction string) (string, error)
}

// ResultSink accepts the finished interview. Failures are logged by the
// caller and never unwind the session.
type ResultSink interface {
	Persist(ctx context.Context, result *InterviewResult) error
}

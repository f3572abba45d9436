// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/configs"
	"github.com/rapidaai/interview/pkg/connectors"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("store-test"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

func newTestStore(t *testing.T) ResultStore {
	t.Helper()
	logger := newTestLogger(t)
	cfg := configs.DatabaseConfig{
		Driver: "sqlite",
		SQLite: configs.SQLiteConfig{Path: filepath.Join(t.TempDir(), "interview.db")},
	}
	db, err := connectors.NewDatabaseConnector(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { _ = db.Disconnect(context.Background()) })
	require.NoError(t, Migrate(context.Background(), cfg, db, logger))
	return NewResultStore(db, logger)
}

func sampleResult(sessionID string) *internal_type.InterviewResult {
	started := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	return &internal_type.InterviewResult{
		InterviewID:   "iv-1",
		SessionID:     sessionID,
		ApplicationID: "app-7",
		CandidateName: "Sam",
		RoleTitle:     "Backend Engineer",
		Status:        internal_type.StatusCompleted,
		EndReason:     "questions-exhausted",
		Transcript: []internal_type.ConversationTurn{
			{Role: internal_type.RoleInterviewer, Text: "Tell me about yourself.", Timestamp: started},
			{Role: internal_type.RoleCandidate, Text: "I build services in Go.", Timestamp: started.Add(time.Minute)},
		},
		Answers: []internal_type.AnsweredQuestion{
			{QuestionID: 1, QuestionText: "Tell me about yourself.", AnswerText: "I build services in Go.", Timestamp: started.Add(time.Minute)},
		},
		StartedAt: started,
		EndedAt:   started.Add(10 * time.Minute),
	}
}

func TestResultStore_PersistAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, sampleResult("s-1")))

	row, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.NotEmpty(t, row.Id)
	assert.Equal(t, "iv-1", row.InterviewID)
	assert.Equal(t, "completed", row.Status)
	assert.False(t, row.CreatedDate.IsZero())
	require.Len(t, row.Transcript, 2)
	assert.Equal(t, internal_type.RoleCandidate, row.Transcript[1].Role)
	require.Len(t, row.Answers, 1)
	assert.Equal(t, uint64(1), row.Answers[0].QuestionID)

	result := row.ToResult()
	assert.Equal(t, internal_type.StatusCompleted, result.Status)
	assert.Equal(t, "Backend Engineer", result.RoleTitle)
}

func TestResultStore_PersistUpsertsBySession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleResult("s-1")
	first.Status = internal_type.StatusAborted
	first.EndReason = "hangup"
	require.NoError(t, store.Persist(ctx, first))
	original, err := store.Get(ctx, "s-1")
	require.NoError(t, err)

	second := sampleResult("s-1")
	second.RecordingRef = "recordings/iv-1.webm"
	require.NoError(t, store.Persist(ctx, second))

	row, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, original.Id, row.Id)
	assert.Equal(t, "completed", row.Status)
	assert.Equal(t, "questions-exhausted", row.EndReason)
	assert.Equal(t, "recordings/iv-1.webm", row.RecordingRef)

	rows, err := store.ListByInterview(ctx, "iv-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestResultStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestResultStore_PersistNil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.Persist(context.Background(), nil))
}

func TestResultStore_ListByInterviewNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Persist(ctx, sampleResult("s-1")))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, store.Persist(ctx, sampleResult("s-2")))

	other := sampleResult("s-3")
	other.InterviewID = "iv-2"
	require.NoError(t, store.Persist(ctx, other))

	rows, err := store.ListByInterview(ctx, "iv-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "s-2", rows[0].SessionID)
	assert.Equal(t, "s-1", rows[1].SessionID)
}

func TestResultStore_AttachRecording(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	affected, err := store.AttachRecording(ctx, "iv-1", "recordings/early.webm")
	require.NoError(t, err)
	assert.Zero(t, affected)

	require.NoError(t, store.Persist(ctx, sampleResult("s-1")))
	affected, err = store.AttachRecording(ctx, "iv-1", "recordings/iv-1.webm")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	row, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "recordings/iv-1.webm", row.RecordingRef)
	assert.False(t, row.UpdatedDate.IsZero())
}

func TestMigrations_EmbeddedSource(t *testing.T) {
	src, err := Migrations()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_interview_results", identifier)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	err := Migrate(context.Background(), configs.DatabaseConfig{Driver: "mysql"}, nil, newTestLogger(t))
	assert.Error(t, err)
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_entity "github.com/rapidaai/interview/api/interview-api/internal/entity"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/configs"
	"github.com/rapidaai/interview/pkg/connectors"
)

func newTestInterviewStore(t *testing.T) InterviewStore {
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
	return NewInterviewStore(db, logger)
}

func prepared(id string) *internal_entity.Interview {
	return &internal_entity.Interview{
		InterviewID:   id,
		ApplicationID: "app-7",
		CandidateName: "Sam",
		RoleTitle:     "Data Scientist",
		Questions: []internal_type.Question{
			{ID: 1, Text: "Walk me through a model you shipped.", Category: "technical", Difficulty: "medium"},
		},
	}
}

func TestInterviewStore_SaveAndGet(t *testing.T) {
	store := newTestInterviewStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, prepared("iv-1"))
	require.NoError(t, err)
	assert.Equal(t, "iv-1", id)

	got, err := store.Get(ctx, "iv-1")
	require.NoError(t, err)
	assert.Equal(t, internal_entity.InterviewPending, got.Status)
	assert.Equal(t, "Data Scientist", got.RoleTitle)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "Walk me through a model you shipped.", got.Questions[0].Text)
}

func TestInterviewStore_SaveGeneratesID(t *testing.T) {
	store := newTestInterviewStore(t)

	id, err := store.Save(context.Background(), prepared(""))
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestInterviewStore_SaveDuplicate(t *testing.T) {
	store := newTestInterviewStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, prepared("iv-1"))
	require.NoError(t, err)
	_, err = store.Save(ctx, prepared("iv-1"))
	assert.Error(t, err)
}

func TestInterviewStore_GetMissing(t *testing.T) {
	store := newTestInterviewStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInterviewNotFound)
}

func TestInterviewStore_ClaimOnce(t *testing.T) {
	store := newTestInterviewStore(t)
	ctx := context.Background()
	_, err := store.Save(ctx, prepared("iv-1"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Claim(ctx, "iv-1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	_, err = store.Claim(ctx, "iv-1")
	assert.ErrorIs(t, err, ErrInterviewNotClaimable)
	_, err = store.Claim(ctx, "missing")
	assert.ErrorIs(t, err, ErrInterviewNotClaimable)
}

func TestInterviewStore_Complete(t *testing.T) {
	store := newTestInterviewStore(t)
	ctx := context.Background()
	_, err := store.Save(ctx, prepared("iv-1"))
	require.NoError(t, err)
	_, err = store.Claim(ctx, "iv-1")
	require.NoError(t, err)

	require.NoError(t, store.Complete(ctx, "iv-1", internal_entity.InterviewCompleted))
	got, err := store.Get(ctx, "iv-1")
	require.NoError(t, err)
	assert.Equal(t, internal_entity.InterviewCompleted, got.Status)
	assert.False(t, got.UpdatedDate.IsZero())

	assert.Error(t, store.Complete(ctx, "iv-1", internal_entity.InterviewPending))
}

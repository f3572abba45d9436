// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/interview/pkg/commons"
)

func TestGo_PanicIsLoggedToApplicationLog(t *testing.T) {
	dir := t.TempDir()
	logger, err := commons.NewApplicationLogger(commons.Name("utils-test"), commons.Path(dir), commons.Level("debug"))
	require.NoError(t, err)

	Go(context.Background(), logger, func() { panic("collaborator exploded") })

	logFile := filepath.Join(dir, "utils-test.log")
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(logFile)
		if err != nil {
			return false
		}
		return strings.Contains(string(data), "Recovered from panic in goroutine") &&
			strings.Contains(string(data), "collaborator exploded")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGo_SkippedWhenContextDone(t *testing.T) {
	logger, err := commons.NewApplicationLogger(commons.Name("utils-test"), commons.Path(t.TempDir()), commons.Level("debug"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	Go(ctx, logger, func() { ran.Store(true) })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())

	done := make(chan struct{})
	Go(context.Background(), logger, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fn did not run")
	}
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"runtime/debug"

	"github.com/rapidaai/interview/pkg/commons"
)

// Go runs fn on its own goroutine and swallows panics so a misbehaving
// collaborator cannot take the process down. fn is skipped when ctx is
// already done.
func Go(ctx context.Context, logger commons.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("Recovered from panic in goroutine", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		select {
		case <-ctx.Done():
			return
		default:
		}
		fn()
	}()
}

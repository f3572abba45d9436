// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

// synthesizer plays text through the browser's speech output.
type synthesizer struct {
	bridge *bridge
}

func (s *synthesizer) Speak(ctx context.Context, text string) error {
	resp, err := s.bridge.request(ctx, TypeSpeak, SpeakData{Text: text})
	if err != nil {
		return fmt.Errorf("failed to speak: %w", err)
	}
	if resp.Type == TypeSpeakError {
		return fmt.Errorf("%w: speech output: %s", ErrRejected, errorMessage(resp))
	}
	return nil
}

func (s *synthesizer) Cancel() error {
	err := s.bridge.Notify(TypeSpeakCancel, nil)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// recognizer forwards transcript fragments from the browser's speech
// recognition to the handler of the current run.
type recognizer struct {
	bridge *bridge

	mu      sync.Mutex
	handler internal_type.RecognitionHandler
}

func (r *recognizer) Start(_ context.Context, handler internal_type.RecognitionHandler) error {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()

	if err := r.bridge.Notify(TypeListenStart, nil); err != nil {
		r.mu.Lock()
		r.handler = nil
		r.mu.Unlock()
		return fmt.Errorf("failed to start recognition: %w", err)
	}
	return nil
}

func (r *recognizer) Stop() error {
	r.mu.Lock()
	wasRunning := r.handler != nil
	r.handler = nil
	r.mu.Unlock()
	if !wasRunning {
		return nil
	}

	err := r.bridge.Notify(TypeListenStop, nil)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (r *recognizer) current() internal_type.RecognitionHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

func (r *recognizer) deliver(fragment internal_type.TranscriptFragment) {
	if h := r.current(); h != nil {
		h.OnFragment(fragment)
	}
}

// ended reports an engine stop the server did not ask for.
func (r *recognizer) ended() {
	r.mu.Lock()
	h := r.handler
	r.handler = nil
	r.mu.Unlock()
	if h != nil {
		h.OnEnd()
	}
}

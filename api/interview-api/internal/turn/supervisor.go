// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_turn

import (
	"context"
	"sync"
	"time"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

// listenSupervisor owns the recognizer. Every start opens a new generation;
// callbacks from an older generation are dropped, so a stopped recognition
// can never leak fragments into the next turn.
type listenSupervisor struct {
	logger     commons.Logger
	recognizer internal_type.SpeechRecognizer
	sink       func(internal_type.TranscriptFragment)

	restartDelay       time.Duration
	engineRestartDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serialises recognizer Start/Stop so a suspend cannot slip in
	// between the wanted check and the engine call.
	opMu sync.Mutex

	mu         sync.Mutex
	wanted     bool
	running    bool
	generation uint64
	timer      *time.Timer
	closed     bool
}

func newListenSupervisor(
	logger commons.Logger,
	recognizer internal_type.SpeechRecognizer,
	sink func(internal_type.TranscriptFragment),
	restartDelay, engineRestartDelay time.Duration,
) *listenSupervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &listenSupervisor{
		logger:             logger,
		recognizer:         recognizer,
		sink:               sink,
		restartDelay:       restartDelay,
		engineRestartDelay: engineRestartDelay,
		ctx:                ctx,
		cancel:             cancel,
	}
}

// Resume asks for recognition to be running after delay.
func (s *listenSupervisor) Resume(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wanted = true
	s.scheduleLocked(delay)
}

// Suspend stops recognition and returns once the engine has been told to
// stop. Nothing from the stopped generation reaches the sink afterwards.
func (s *listenSupervisor) Suspend() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.wanted = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	wasRunning := s.running
	s.running = false
	s.generation++
	s.mu.Unlock()

	if wasRunning {
		if err := s.recognizer.Stop(); err != nil {
			s.logger.Warnw("Speech recognizer did not stop cleanly", "error", err)
		}
	}
}

// Running reports whether the recognizer is currently started.
func (s *listenSupervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *listenSupervisor) Close() {
	s.Suspend()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *listenSupervisor) scheduleLocked(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.start)
}

func (s *listenSupervisor) start() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.wanted || s.running || s.closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	s.running = true
	s.timer = nil
	s.mu.Unlock()

	if err := s.recognizer.Start(s.ctx, &generationHandler{supervisor: s, generation: gen}); err != nil {
		s.logger.Warnw("Speech recognizer failed to start, retrying", "error", err, "retryIn", s.restartDelay)
		s.mu.Lock()
		if s.generation == gen {
			s.running = false
			if s.wanted && !s.closed {
				s.scheduleLocked(s.restartDelay)
			}
		}
		s.mu.Unlock()
		return
	}
	s.logger.Debugw("Speech recognizer started", "generation", gen)
}

func (s *listenSupervisor) onFragment(gen uint64, fragment internal_type.TranscriptFragment) {
	s.mu.Lock()
	live := gen == s.generation && s.running
	s.mu.Unlock()
	if !live {
		return
	}
	s.sink(fragment)
}

// onEnd handles the engine stopping by itself (silence timeout, network).
func (s *listenSupervisor) onEnd(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || !s.running {
		return
	}
	s.running = false
	if s.wanted && !s.closed {
		s.logger.Debugw("Speech recognizer ended, restarting", "generation", gen)
		s.scheduleLocked(s.engineRestartDelay)
	}
}

type generationHandler struct {
	supervisor *listenSupervisor
	generation uint64
}

func (h *generationHandler) OnFragment(fragment internal_type.TranscriptFragment) {
	h.supervisor.onFragment(h.generation, fragment)
}

func (h *generationHandler) OnEnd() {
	h.supervisor.onEnd(h.generation)
}

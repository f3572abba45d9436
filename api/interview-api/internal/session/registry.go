// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"sync"
	"time"

	internal_media "github.com/rapidaai/interview/api/interview-api/internal/media"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/utils"
)

var (
	ErrSessionExists   = errors.New("interview already has a live session")
	ErrSessionNotFound = errors.New("no live session for interview")
	ErrChannelBusy     = errors.New("media channel is held by another interview")
)

// Registry tracks the live sessions of the process. Sessions are keyed by
// media channel, so two interview ids that sanitise to the same channel
// can never be live at once.
type Registry interface {
	// Launch registers s and runs it in the background. The session is
	// removed once Run returns.
	Launch(ctx context.Context, s Session) error
	Get(interviewID string) (Session, error)
	// ChannelOwner reports which interview currently holds the channel
	// interviewID maps to.
	ChannelOwner(interviewID string) (string, bool)
	List() []Session
	// Shutdown hangs up every live session and waits for them to finish or
	// for ctx to expire.
	Shutdown(ctx context.Context) error
}

type registry struct {
	logger commons.Logger

	mu       sync.RWMutex
	// keyed by internal_media.ChannelName
	sessions map[string]Session
}

func NewRegistry(logger commons.Logger) Registry {
	return &registry{
		logger:   logger,
		sessions: make(map[string]Session),
	}
}

func (r *registry) Launch(ctx context.Context, s Session) error {
	channel := internal_media.ChannelName(s.InterviewID())
	r.mu.Lock()
	if live, ok := r.sessions[channel]; ok {
		r.mu.Unlock()
		if live.InterviewID() != s.InterviewID() {
			r.logger.Warnw("Channel already held by another interview", "interviewId", s.InterviewID(), "owner", live.InterviewID(), "channel", channel)
			return ErrChannelBusy
		}
		return ErrSessionExists
	}
	r.sessions[channel] = s
	r.mu.Unlock()

	utils.Go(context.Background(), r.logger, func() {
		defer r.remove(s)
		start := time.Now()
		if _, err := s.Run(ctx); err != nil {
			r.logger.Errorw("Interview session ended with error", "interviewId", s.InterviewID(), "sessionId", s.ID(), "error", err)
		}
		r.logger.Benchmark("session.Run", time.Since(start))
	})
	return nil
}

func (r *registry) remove(s Session) {
	channel := internal_media.ChannelName(s.InterviewID())
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[channel]; ok && current == s {
		delete(r.sessions, channel)
	}
}

func (r *registry) Get(interviewID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[internal_media.ChannelName(interviewID)]
	if !ok || s.InterviewID() != interviewID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *registry) ChannelOwner(interviewID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[internal_media.ChannelName(interviewID)]
	if !ok {
		return "", false
	}
	return s.InterviewID(), true
}

func (r *registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *registry) Shutdown(ctx context.Context) error {
	live := r.List()
	r.logger.Infof("hanging up %d live interview sessions", len(live))
	for _, s := range live {
		s.Hangup(EndReasonCancelled)
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

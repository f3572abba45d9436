// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	internal_dialogue "github.com/rapidaai/interview/api/interview-api/internal/dialogue"
	internal_media "github.com/rapidaai/interview/api/interview-api/internal/media"
	internal_recording "github.com/rapidaai/interview/api/interview-api/internal/recording"
	internal_turn "github.com/rapidaai/interview/api/interview-api/internal/turn"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/utils"
)

var (
	ErrSessionAbortedBeforeStart = errors.New("interview session aborted before start")
	ErrNoQuestions               = internal_dialogue.ErrNoQuestions
	ErrAlreadyRunning            = errors.New("interview session already running")
	ErrNotRunning                = errors.New("interview session is not running")
	ErrSessionPanicked           = errors.New("interview session panicked")
	ErrLocalRecordingDisabled    = errors.New("local recording is disabled")
)

// End reasons in addition to the dialogue's own.
const (
	EndReasonHangup           = "hangup"
	EndReasonParticipantLeft  = "participant-left"
	EndReasonCancelled        = "cancelled"
	EndReasonAbortedBefore    = "aborted-before-start"
	EndReasonTurnEngineClosed = "turn-engine-closed"
	EndReasonDialogueError    = "dialogue-error"
	EndReasonInternalError    = "internal-error"
)

type Config struct {
	// LocalRecordingDelay gives the call a moment to settle before the
	// composite recorder asks for screen capture.
	LocalRecordingDelay time.Duration              `mapstructure:"local_recording_delay"`
	CloudRecording      bool                       `mapstructure:"cloud_recording"`
	LocalRecording      bool                       `mapstructure:"local_recording"`
	LocalSources        internal_type.MediaSources `mapstructure:"local_sources"`
	Tracks              internal_media.TrackSet    `mapstructure:"tracks"`
	FinalizeTimeout     time.Duration              `mapstructure:"finalize_timeout"`
	PersistTimeout      time.Duration              `mapstructure:"persist_timeout"`
}

func DefaultConfig() Config {
	return Config{
		LocalRecordingDelay: 2 * time.Second,
		CloudRecording:      true,
		LocalRecording:      true,
		LocalSources: internal_type.MediaSources{
			Screen:          true,
			SystemAudio:     true,
			MicrophoneAudio: true,
			Timeslice:       internal_recording.DefaultTimeslice,
		},
		Tracks:          internal_media.TrackSet{Audio: true, Video: true},
		FinalizeTimeout: 30 * time.Second,
		PersistTimeout:  10 * time.Second,
	}
}

// Params describe one interview.
type Params struct {
	// SessionID is generated when empty.
	SessionID     string
	InterviewID   string
	ApplicationID string
	CandidateName string
	RoleTitle     string
	Questions     []internal_type.Question
	Credentials   internal_type.Credentials
	// Transport carries this candidate's media. Nil joins through the
	// media manager's default transport.
	Transport     internal_type.MediaTransport
}

// Dependencies are the per-session components. Media is shared by the
// process; the rest belong to this session alone.
type Dependencies struct {
	Media     internal_media.SessionManager
	Recording internal_recording.Controller
	Turn      internal_turn.Controller
	Dialogue  internal_dialogue.Machine
	Sink      internal_type.ResultSink
}

// Session drives one interview from the first greeting to the hand-off of
// its result.
type Session interface {
	ID() string
	InterviewID() string

	// Run blocks until the interview ended and returns its result. Every
	// exit path, including failures before the call started, releases media
	// and stops recording exactly once.
	Run(ctx context.Context) (*internal_type.InterviewResult, error)

	// SubmitAnswer hands the candidate's buffered answer to the dialogue.
	SubmitAnswer() (string, error)

	// Hangup ends the interview early. Only the first reason is kept.
	Hangup(reason string)

	// SetTrackEnabled mutes or unmutes a published local track.
	SetTrackEnabled(ctx context.Context, kind internal_type.TrackKind, enabled bool) error

	// RestartLocalRecording asks for the screen again after the candidate
	// ended the share.
	RestartLocalRecording(ctx context.Context) error

	Snapshot() internal_type.InterviewSessionState
	Transcript() string
	Done() <-chan struct{}
	Result() *internal_type.InterviewResult
}

type session struct {
	logger commons.Logger
	config Config
	params Params
	deps   Dependencies
	id     string

	running atomic.Bool
	done    chan struct{}

	stopOnce   sync.Once
	stop       chan struct{}
	stopReason atomic.Value

	cancelRun     context.CancelFunc
	starters      sync.WaitGroup
	finalizeOnce  sync.Once
	handle        *internal_media.ConnectionHandle
	cloudRecorded atomic.Bool
	startedAt     time.Time

	mu     sync.Mutex
	result *internal_type.InterviewResult
}

func NewSession(logger commons.Logger, config Config, params Params, deps Dependencies) Session {
	id := params.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	return &session{
		logger: logger,
		config: config,
		params: params,
		deps:   deps,
		id:     id,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func (s *session) ID() string {
	return s.id
}

func (s *session) InterviewID() string {
	return s.params.InterviewID
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) Result() *internal_type.InterviewResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *session) Snapshot() internal_type.InterviewSessionState {
	return s.deps.Dialogue.Snapshot()
}

func (s *session) Transcript() string {
	return s.deps.Turn.Transcript()
}

func (s *session) Hangup(reason string) {
	s.stopOnce.Do(func() {
		if reason == "" {
			reason = EndReasonHangup
		}
		s.stopReason.Store(reason)
		s.logger.Infow("Interview hangup requested", "interviewId", s.params.InterviewID, "reason", reason)
		close(s.stop)
	})
}

func (s *session) hungUp() (string, bool) {
	reason, ok := s.stopReason.Load().(string)
	return reason, ok
}

func (s *session) SubmitAnswer() (string, error) {
	if !s.running.Load() {
		return "", ErrNotRunning
	}
	return s.deps.Turn.SubmitCurrentAnswer()
}

func (s *session) SetTrackEnabled(ctx context.Context, kind internal_type.TrackKind, enabled bool) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if !s.running.Load() || handle == nil {
		return ErrNotRunning
	}
	return s.deps.Media.SetTrackEnabled(ctx, handle, kind, enabled)
}

func (s *session) RestartLocalRecording(ctx context.Context) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	if !s.config.LocalRecording {
		return ErrLocalRecordingDisabled
	}
	if err := s.deps.Recording.StartLocalRecording(ctx, s.config.LocalSources); err != nil {
		s.logger.Warnw("Screen share could not be restarted", "interviewId", s.params.InterviewID, "error", err)
		return err
	}
	s.logger.Infow("Screen share restarted", "interviewId", s.params.InterviewID)
	return nil
}

// =============================================================================
// Protocol
// =============================================================================

func (s *session) Run(ctx context.Context) (result *internal_type.InterviewResult, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Interview session panicked, finalizing", "interviewId", s.params.InterviewID, "sessionId", s.id, "panic", r, "stack", string(debug.Stack()))
			s.finalize(EndReasonInternalError)
			result, err = s.Result(), fmt.Errorf("%w: %v", ErrSessionPanicked, r)
		}
	}()

	s.startedAt = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelRun = cancel
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.logger.Infow("Interview session starting", "interviewId", s.params.InterviewID, "sessionId", s.id, "questions", len(s.params.Questions))

	if len(s.params.Questions) == 0 {
		s.finalize(EndReasonAbortedBefore)
		return s.Result(), fmt.Errorf("%w: %w", ErrSessionAbortedBeforeStart, ErrNoQuestions)
	}

	if err := s.connect(runCtx); err != nil {
		s.finalize(EndReasonAbortedBefore)
		return s.Result(), fmt.Errorf("%w: %w", ErrSessionAbortedBeforeStart, err)
	}

	greeting, err := s.deps.Dialogue.Initialize(s.params.Questions, s.params.CandidateName, s.params.RoleTitle)
	if err != nil {
		s.finalize(EndReasonAbortedBefore)
		return s.Result(), fmt.Errorf("%w: %w", ErrSessionAbortedBeforeStart, err)
	}

	s.startRecording(runCtx)

	s.deps.Turn.ExpectTurn()
	s.speak(runCtx, greeting)

	reason := s.loop(runCtx)
	s.finalize(reason)
	return s.Result(), nil
}

func (s *session) connect(ctx context.Context) error {
	channel := internal_media.ChannelName(s.params.InterviewID)
	var opts []internal_media.ConnectOption
	if s.params.Transport != nil {
		opts = append(opts, internal_media.WithTransport(s.params.Transport))
	}
	handle, err := s.deps.Media.Connect(ctx, channel, s.params.Credentials, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect media: %w", err)
	}
	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	if err := s.deps.Media.PublishLocalTracks(ctx, handle, s.config.Tracks); err != nil {
		return fmt.Errorf("failed to publish local tracks: %w", err)
	}

	events, err := s.deps.Media.SubscribeRemote(handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to remote participants: %w", err)
	}
	go s.watchRemote(events)
	return nil
}

// watchRemote ends the interview when the candidate leaves the channel.
func (s *session) watchRemote(events <-chan internal_type.RemoteParticipantEvent) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.logger.Debugw("Remote participant event", "interviewId", s.params.InterviewID, "type", ev.Type, "participant", ev.ParticipantID, "kind", ev.Kind)
			if ev.Type == internal_type.ParticipantLeft {
				s.Hangup(EndReasonParticipantLeft)
				return
			}
		}
	}
}

func (s *session) startRecording(ctx context.Context) {
	if s.config.CloudRecording {
		if _, err := s.deps.Recording.StartCloudRecording(ctx, s.params.InterviewID); err != nil {
			s.logger.Warnw("Cloud recording unavailable, continuing without it", "interviewId", s.params.InterviewID, "error", err)
		} else {
			s.cloudRecorded.Store(s.deps.Recording.IsCloudRecording(s.params.InterviewID))
		}
	}

	if !s.config.LocalRecording {
		return
	}
	s.starters.Add(1)
	go func() {
		defer s.starters.Done()
		timer := time.NewTimer(s.config.LocalRecordingDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := s.deps.Recording.StartLocalRecording(ctx, s.config.LocalSources); err != nil {
			s.logger.Warnw("Local recording unavailable, continuing without it", "interviewId", s.params.InterviewID, "error", err)
		}
	}()
}

func (s *session) speak(ctx context.Context, text string) {
	s.deps.Dialogue.SetStatus(internal_type.StatusSpeaking)
	if err := s.deps.Turn.Speak(ctx, text); err != nil {
		s.logger.Warnw("Failed to speak utterance", "interviewId", s.params.InterviewID, "error", err)
	}
	s.deps.Dialogue.SetStatus(internal_type.StatusAwaitingAnswer)
}

// loop feeds every submitted answer to the dialogue until it ends or the
// session is stopped from outside.
func (s *session) loop(ctx context.Context) string {
	submissions := s.deps.Turn.Submissions()
	for {
		select {
		case <-ctx.Done():
			return s.cancelReason()
		case sub, ok := <-submissions:
			if !ok {
				return EndReasonTurnEngineClosed
			}
			if ctx.Err() != nil {
				return s.cancelReason()
			}
			s.logger.Debugw("Candidate turn submitted", "interviewId", s.params.InterviewID, "forced", sub.Forced, "chars", len(sub.Text))

			step, err := s.deps.Dialogue.Advance(ctx, sub.Text)
			if err != nil {
				s.logger.Errorw("Dialogue failed to advance", "interviewId", s.params.InterviewID, "error", err)
				if ctx.Err() != nil {
					return s.cancelReason()
				}
				return EndReasonDialogueError
			}
			if step.ShouldContinue {
				s.deps.Turn.ExpectTurn()
			}
			s.speak(ctx, step.NextUtterance)
			if !step.ShouldContinue {
				return step.EndReason
			}
		}
	}
}

func (s *session) cancelReason() string {
	if reason, ok := s.hungUp(); ok {
		return reason
	}
	return EndReasonCancelled
}

// =============================================================================
// Finalization
// =============================================================================

// finalize is the single cleanup routine shared by every exit path.
func (s *session) finalize(reason string) {
	s.finalizeOnce.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.FinalizeTimeout)
		defer cancel()

		// No recorder may start after this point.
		if s.cancelRun != nil {
			s.cancelRun()
		}
		s.starters.Wait()

		s.deps.Turn.EndTurn()
		s.deps.Turn.Close()
		if !s.deps.Dialogue.Snapshot().Status.IsTerminal() {
			s.deps.Dialogue.Abort()
		}

		var recordingRef string
		var g errgroup.Group
		g.Go(func() error {
			if err := s.deps.Recording.StopCloudRecording(ctx, s.params.InterviewID); err != nil {
				s.logger.Warnw("Failed to stop cloud recording", "interviewId", s.params.InterviewID, "error", err)
			}
			return nil
		})
		g.Go(func() error {
			recordingRef = s.finishLocalRecording(ctx)
			return nil
		})
		_ = g.Wait()

		snapshot := s.deps.Dialogue.Snapshot()
		result := &internal_type.InterviewResult{
			InterviewID:   s.params.InterviewID,
			SessionID:     s.id,
			ApplicationID: s.params.ApplicationID,
			CandidateName: s.params.CandidateName,
			RoleTitle:     s.params.RoleTitle,
			Status:        snapshot.Status,
			EndReason:     reason,
			Transcript:    snapshot.History,
			Answers:       snapshot.Answers,
			RecordingRef:  recordingRef,
			CloudRecorded: s.cloudRecorded.Load(),
			StartedAt:     s.startedAt,
			EndedAt:       time.Now(),
		}
		s.mu.Lock()
		s.result = result
		s.mu.Unlock()

		s.persist(result)

		s.mu.Lock()
		handle := s.handle
		s.mu.Unlock()
		if err := s.deps.Media.Disconnect(ctx, handle); err != nil {
			s.logger.Warnw("Failed to release media connection", "interviewId", s.params.InterviewID, "error", err)
		}

		s.logger.Infow("Interview session finalized",
			"interviewId", s.params.InterviewID,
			"reason", reason,
			"status", result.Status,
			"answers", len(result.Answers),
			"recording", recordingRef != "")
		s.logger.Benchmark("session.finalize", time.Since(start))
	})
}

// finishLocalRecording uploads the shares the candidate ended first, then
// the live one. The location of the last successful upload is kept.
func (s *session) finishLocalRecording(ctx context.Context) string {
	recordings := s.deps.Recording.RevokedRecordings()
	rec, err := s.deps.Recording.StopLocalRecording(ctx)
	if err != nil {
		if !errors.Is(err, internal_recording.ErrNotRecording) {
			s.logger.Warnw("Local recording could not be finalized", "interviewId", s.params.InterviewID, "error", err)
		}
	} else {
		recordings = append(recordings, rec)
	}

	var location string
	for _, rec := range recordings {
		uploaded, err := s.deps.Recording.UploadRecording(ctx, rec, internal_type.UploadMetadata{
			InterviewID:   s.params.InterviewID,
			ApplicationID: s.params.ApplicationID,
		})
		if err != nil {
			s.logger.Warnw("Recording upload failed, results kept without video", "interviewId", s.params.InterviewID, "error", err)
			continue
		}
		location = uploaded.Location
	}
	return location
}

// persist hands the result off without waiting for it.
func (s *session) persist(result *internal_type.InterviewResult) {
	if s.deps.Sink == nil {
		return
	}
	utils.Go(context.Background(), s.logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.PersistTimeout)
		defer cancel()
		if err := s.deps.Sink.Persist(ctx, result); err != nil {
			s.logger.Errorw("Failed to persist interview result", "interviewId", result.InterviewID, "error", err)
		}
	})
}

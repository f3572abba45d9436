// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var (
	ErrCloudRecordingUnavailable = errors.New("cloud recording unavailable")
	ErrLocalRecordingActive      = errors.New("local recording already active")
	ErrNotRecording              = errors.New("local recording not active")
	ErrCaptureUnavailable        = errors.New("screen capture unavailable")
	ErrEmptyRecording            = errors.New("recording is empty")
	ErrUploadFailed              = errors.New("recording upload failed")

	// ErrPermissionDenied is surfaced when the candidate declines the share.
	ErrPermissionDenied = internal_type.ErrPermissionDenied
)

const (
	// TestInterviewPrefix marks interviews that never record in the cloud.
	TestInterviewPrefix = "TEST-"

	DefaultTimeslice       = time.Second
	DefaultFinalizeTimeout = 5 * time.Second
)

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadInProgress UploadStatus = "uploading"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
	UploadSkipped    UploadStatus = "skipped" // nothing was captured
)

// RecordingState is a snapshot of what the controller is currently doing.
type RecordingState struct {
	CloudHandles map[string]internal_type.RecordingHandle `json:"cloudHandles"`
	LocalActive  bool                                     `json:"localActive"`
	LocalChunks  int                                      `json:"localChunks"`
	UploadStatus UploadStatus                             `json:"uploadStatus"`
}

// Controller starts and stops cloud and local recordings for interviews.
// Every stop is idempotent and recording failures never end an interview.
type Controller interface {
	StartCloudRecording(ctx context.Context, interviewID string) (internal_type.RecordingHandle, error)
	StopCloudRecording(ctx context.Context, interviewID string) error
	IsCloudRecording(interviewID string) bool

	// StartLocalRecording begins a composite screen + audio capture. After
	// the candidate ended a share it starts a new capture; the revoked
	// recording is kept for RevokedRecordings.
	StartLocalRecording(ctx context.Context, sources internal_type.MediaSources) error

	// StopLocalRecording finalizes the capture and returns the assembled
	// recording. When the candidate already ended the share the recording
	// finalized at that moment is returned.
	StopLocalRecording(ctx context.Context) (internal_type.Recording, error)

	// RevokedRecordings hands out, once, the recordings of shares that the
	// candidate ended and later replaced with a new one.
	RevokedRecordings() []internal_type.Recording

	UploadRecording(ctx context.Context, rec internal_type.Recording, meta internal_type.UploadMetadata) (internal_type.UploadResult, error)

	State() RecordingState
}

type controller struct {
	logger   commons.Logger
	cloud    internal_type.CloudRecordingService
	capture  internal_type.ScreenCapture
	uploader internal_type.RecordingUploader

	finalizeTimeout time.Duration

	// cloudMu is held across the provider call so a concurrent start
	// cannot issue a second acquire for the same interview.
	cloudMu      sync.Mutex
	cloudHandles map[string]internal_type.RecordingHandle

	localMu sync.Mutex
	local   *localRecording
	revoked []internal_type.Recording

	uploadMu     sync.Mutex
	uploadStatus UploadStatus
}

type Option func(*controller)

func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *controller) { c.finalizeTimeout = d }
}

// NewController wires the recording collaborators. Any of them may be nil,
// in which case the matching operation reports itself unavailable.
func NewController(
	logger commons.Logger,
	cloud internal_type.CloudRecordingService,
	capture internal_type.ScreenCapture,
	uploader internal_type.RecordingUploader,
	opts ...Option,
) Controller {
	c := &controller{
		logger:          logger,
		cloud:           cloud,
		capture:         capture,
		uploader:        uploader,
		finalizeTimeout: DefaultFinalizeTimeout,
		cloudHandles:    make(map[string]internal_type.RecordingHandle),
		uploadStatus:    UploadPending,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// Cloud recording
// =============================================================================

func (c *controller) StartCloudRecording(ctx context.Context, interviewID string) (internal_type.RecordingHandle, error) {
	if strings.HasPrefix(interviewID, TestInterviewPrefix) {
		c.logger.Infow("Test interview, skipping cloud recording", "interviewId", interviewID)
		return internal_type.RecordingHandle{}, nil
	}

	c.cloudMu.Lock()
	defer c.cloudMu.Unlock()

	if handle, ok := c.cloudHandles[interviewID]; ok {
		c.logger.Warnw("Cloud recording already active", "interviewId", interviewID, "sid", handle.SID)
		return handle, nil
	}
	if c.cloud == nil {
		return internal_type.RecordingHandle{}, ErrCloudRecordingUnavailable
	}

	start := time.Now()
	handle, err := c.cloud.Start(ctx, interviewID)
	c.logger.Benchmark("recording.StartCloudRecording", time.Since(start))
	if err != nil {
		c.logger.Warnw("Cloud recording could not start, continuing without it", "interviewId", interviewID, "error", err)
		return internal_type.RecordingHandle{}, fmt.Errorf("%w: %w", ErrCloudRecordingUnavailable, err)
	}

	c.cloudHandles[interviewID] = handle
	c.logger.Infow("Cloud recording started", "interviewId", interviewID, "resourceId", handle.ResourceID, "sid", handle.SID)
	return handle, nil
}

func (c *controller) StopCloudRecording(ctx context.Context, interviewID string) error {
	c.cloudMu.Lock()
	defer c.cloudMu.Unlock()

	handle, ok := c.cloudHandles[interviewID]
	if !ok {
		return nil
	}
	// Cleared before the call: a failed stop is not retried.
	delete(c.cloudHandles, interviewID)

	if err := c.cloud.Stop(ctx, interviewID); err != nil {
		c.logger.Errorw("Failed to stop cloud recording", "interviewId", interviewID, "sid", handle.SID, "error", err)
		return fmt.Errorf("failed to stop cloud recording for %s: %w", interviewID, err)
	}
	c.logger.Infow("Cloud recording stopped", "interviewId", interviewID, "sid", handle.SID)
	return nil
}

func (c *controller) IsCloudRecording(interviewID string) bool {
	c.cloudMu.Lock()
	defer c.cloudMu.Unlock()
	_, ok := c.cloudHandles[interviewID]
	return ok
}

// =============================================================================
// Local composite recording
// =============================================================================

type localRecording struct {
	stream    internal_type.CaptureStream
	startedAt time.Time

	mu     sync.Mutex
	chunks [][]byte
	size   int

	drained chan struct{}

	finalizeOnce sync.Once
	finalized    bool
	result       internal_type.Recording
	err          error
}

func (lr *localRecording) append(chunk []byte) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.chunks = append(lr.chunks, chunk)
	lr.size += len(chunk)
}

func (lr *localRecording) isFinalized() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.finalized
}

func (lr *localRecording) assemble(finishedAt time.Time) internal_type.Recording {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	data := make([]byte, 0, lr.size)
	for _, chunk := range lr.chunks {
		data = append(data, chunk...)
	}
	return internal_type.Recording{
		Data:       data,
		MimeType:   lr.stream.MimeType(),
		Chunks:     len(lr.chunks),
		StartedAt:  lr.startedAt,
		FinishedAt: finishedAt,
	}
}

func (c *controller) StartLocalRecording(ctx context.Context, sources internal_type.MediaSources) error {
	c.localMu.Lock()
	defer c.localMu.Unlock()

	if c.local != nil {
		if !c.local.isFinalized() {
			return ErrLocalRecordingActive
		}
		if !c.local.result.Empty() {
			c.revoked = append(c.revoked, c.local.result)
		}
		c.local = nil
	}
	if c.capture == nil {
		return ErrCaptureUnavailable
	}
	if sources.Timeslice <= 0 {
		sources.Timeslice = DefaultTimeslice
	}

	stream, err := c.capture.Capture(ctx, sources)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			c.logger.Warnw("Candidate declined screen sharing, interview continues unrecorded")
			return err
		}
		return fmt.Errorf("failed to start local recording: %w", err)
	}

	lr := &localRecording{
		stream:    stream,
		startedAt: time.Now(),
		drained:   make(chan struct{}),
	}
	c.local = lr
	go c.collect(lr)

	c.logger.Infow("Local recording started", "mimeType", stream.MimeType(), "timeslice", sources.Timeslice)
	return nil
}

// collect buffers chunks until the stream closes. A revoked share starts
// finalization while the last chunks are still being drained.
func (c *controller) collect(lr *localRecording) {
	defer close(lr.drained)
	revoked := lr.stream.Revoked()
	for {
		select {
		case chunk, ok := <-lr.stream.Chunks():
			if !ok {
				return
			}
			if len(chunk) > 0 {
				lr.append(chunk)
			}
		case <-revoked:
			revoked = nil
			c.logger.Warnw("Screen share ended by candidate, finalizing local recording")
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), c.finalizeTimeout)
				defer cancel()
				_, _ = c.finalize(ctx, lr)
			}()
		}
	}
}

func (c *controller) finalize(ctx context.Context, lr *localRecording) (internal_type.Recording, error) {
	lr.finalizeOnce.Do(func() {
		if err := lr.stream.Stop(ctx); err != nil {
			c.logger.Warnw("Capture stream did not stop cleanly", "error", err)
		}

		wait, cancel := context.WithTimeout(ctx, c.finalizeTimeout)
		defer cancel()
		select {
		case <-lr.drained:
		case <-wait.Done():
			c.logger.Warnw("Timed out waiting for final recording chunks")
		}

		lr.result = lr.assemble(time.Now())
		if lr.result.Empty() {
			lr.err = ErrEmptyRecording
		}
		lr.mu.Lock()
		lr.finalized = true
		lr.mu.Unlock()
		c.logger.Infow("Local recording finalized", "chunks", lr.result.Chunks, "bytes", len(lr.result.Data))
	})
	return lr.result, lr.err
}

func (c *controller) RevokedRecordings() []internal_type.Recording {
	c.localMu.Lock()
	defer c.localMu.Unlock()
	out := c.revoked
	c.revoked = nil
	return out
}

func (c *controller) StopLocalRecording(ctx context.Context) (internal_type.Recording, error) {
	c.localMu.Lock()
	lr := c.local
	c.local = nil
	c.localMu.Unlock()

	if lr == nil {
		return internal_type.Recording{}, ErrNotRecording
	}
	return c.finalize(ctx, lr)
}

// =============================================================================
// Upload
// =============================================================================

func (c *controller) setUploadStatus(status UploadStatus) {
	c.uploadMu.Lock()
	defer c.uploadMu.Unlock()
	c.uploadStatus = status
}

func (c *controller) UploadRecording(ctx context.Context, rec internal_type.Recording, meta internal_type.UploadMetadata) (internal_type.UploadResult, error) {
	if rec.Empty() {
		c.setUploadStatus(UploadSkipped)
		return internal_type.UploadResult{}, ErrEmptyRecording
	}
	if c.uploader == nil {
		c.setUploadStatus(UploadFailed)
		return internal_type.UploadResult{}, fmt.Errorf("%w: no uploader configured", ErrUploadFailed)
	}

	c.setUploadStatus(UploadInProgress)
	start := time.Now()
	result, err := c.uploader.Upload(ctx, rec, meta)
	c.logger.Benchmark("recording.UploadRecording", time.Since(start))
	if err != nil {
		c.setUploadStatus(UploadFailed)
		c.logger.Errorw("Failed to upload recording", "interviewId", meta.InterviewID, "bytes", len(rec.Data), "error", err)
		return internal_type.UploadResult{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	c.setUploadStatus(UploadCompleted)
	c.logger.Infow("Recording uploaded", "interviewId", meta.InterviewID, "location", result.Location, "transcoded", result.Transcoded)
	return result, nil
}

func (c *controller) State() RecordingState {
	state := RecordingState{CloudHandles: make(map[string]internal_type.RecordingHandle)}

	c.cloudMu.Lock()
	for id, h := range c.cloudHandles {
		state.CloudHandles[id] = h
	}
	c.cloudMu.Unlock()

	c.localMu.Lock()
	if lr := c.local; lr != nil {
		lr.mu.Lock()
		state.LocalActive = !lr.finalized
		state.LocalChunks = len(lr.chunks)
		lr.mu.Unlock()
	}
	c.localMu.Unlock()

	c.uploadMu.Lock()
	state.UploadStatus = c.uploadStatus
	c.uploadMu.Unlock()
	return state
}

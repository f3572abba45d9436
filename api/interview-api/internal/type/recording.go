// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrPermissionDenied is returned by a ScreenCapture when the candidate
// declines screen sharing.
var ErrPermissionDenied = errors.New("screen capture permission denied")

// RecordingHandle identifies an active cloud recording.
type RecordingHandle struct {
	ResourceID string `json:"resourceId"`
	SID        string `json:"sid"`
}

func (h RecordingHandle) IsZero() bool {
	return h.ResourceID == "" && h.SID == ""
}

// CloudRecordingService records the call channel on the provider side.
type CloudRecordingService interface {
	Start(ctx context.Context, interviewID string) (RecordingHandle, error)
	Stop(ctx context.Context, interviewID string) error
}

// MediaSources selects what the local composite recorder captures.
type MediaSources struct {
	Screen          bool          `json:"screen" mapstructure:"screen"`
	SystemAudio     bool          `json:"systemAudio" mapstructure:"system_audio"`
	MicrophoneAudio bool          `json:"microphoneAudio" mapstructure:"microphone_audio"`
	Timeslice       time.Duration `json:"timeslice" mapstructure:"timeslice"`
}

// ScreenCapture starts a client-side composite recorder.
type ScreenCapture interface {
	Capture(ctx context.Context, sources MediaSources) (CaptureStream, error)
}

// CaptureStream delivers recorder output in fixed-interval chunks.
type CaptureStream interface {
	// Chunks is closed after Stop once the recorder has flushed.
	Chunks() <-chan []byte
	// Revoked is closed when the candidate ends the share from outside.
	Revoked() <-chan struct{}
	MimeType() string
	Stop(ctx context.Context) error
}

// Recording is an assembled local composite recording.
type Recording struct {
	Data       []byte    `json:"-"`
	MimeType   string    `json:"mimeType"`
	Chunks     int       `json:"chunks"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (r Recording) Empty() bool {
	return len(r.Data) == 0
}

type UploadMetadata struct {
	InterviewID   string `json:"interviewId"`
	ApplicationID string `json:"applicationId"`
}

type UploadResult struct {
	Location   string `json:"location"`
	Transcoded bool   `json:"transcoded"`
	Size       int64  `json:"size"`
}

// RecordingUploader ships a finished recording to the storage service.
type RecordingUploader interface {
	Upload(ctx context.Context, rec Recording, meta UploadMetadata) (UploadResult, error)
}

// BlobStorage keeps finished recording files.
type BlobStorage interface {
	Name() string
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

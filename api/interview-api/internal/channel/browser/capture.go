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

const chunkBufferSize = 256

var ErrCaptureActive = errors.New("screen capture already active")

// screenCapture drives the browser's composite screen recorder. Recorder
// output arrives as binary frames.
type screenCapture struct {
	bridge *bridge

	mu     sync.Mutex
	stream *captureStream
}

func (c *screenCapture) Capture(ctx context.Context, sources internal_type.MediaSources) (internal_type.CaptureStream, error) {
	// The stream is registered before asking so chunks sent right after
	// capture_started are not lost.
	stream := &captureStream{
		bridge:  c.bridge,
		chunks:  make(chan []byte, chunkBufferSize),
		revoked: make(chan struct{}),
	}
	c.mu.Lock()
	if c.stream != nil && !c.stream.isClosed() {
		c.mu.Unlock()
		return nil, ErrCaptureActive
	}
	c.stream = stream
	c.mu.Unlock()

	resp, err := c.bridge.request(ctx, TypeCaptureStart, CaptureData{
		Screen:          sources.Screen,
		SystemAudio:     sources.SystemAudio,
		MicrophoneAudio: sources.MicrophoneAudio,
		TimesliceMs:     sources.Timeslice.Milliseconds(),
	})
	if err == nil && resp.Type == TypeCaptureDenied {
		err = fmt.Errorf("%w: %s", internal_type.ErrPermissionDenied, errorMessage(resp))
	} else if err != nil {
		err = fmt.Errorf("failed to start screen capture: %w", err)
	}

	var started CaptureStartedData
	if err == nil {
		if derr := resp.decode(&started); derr != nil {
			err = fmt.Errorf("failed to decode capture_started: %w", derr)
		}
	}
	if err != nil {
		c.mu.Lock()
		if c.stream == stream {
			c.stream = nil
		}
		c.mu.Unlock()
		stream.discard()
		return nil, err
	}

	stream.setMimeType(started.MimeType)
	c.bridge.logger.Infow("Screen capture started", "mimeType", started.MimeType)
	return stream, nil
}

func (c *screenCapture) active() *captureStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *screenCapture) chunk(payload []byte) {
	stream := c.active()
	if stream == nil {
		c.bridge.logger.Debugw("Dropping recording chunk without active capture", "bytes", len(payload))
		return
	}
	stream.push(payload)
}

func (c *screenCapture) revoke() {
	if stream := c.active(); stream != nil {
		stream.revoke()
	}
}

// bridgeClosed is treated like the candidate ending the share.
func (c *screenCapture) bridgeClosed() {
	c.revoke()
}

type captureStream struct {
	bridge  *bridge
	chunks  chan []byte
	revoked chan struct{}

	stopOnce   sync.Once
	revokeOnce sync.Once

	mu       sync.Mutex
	mimeType string
	closed   bool
}

func (s *captureStream) Chunks() <-chan []byte    { return s.chunks }
func (s *captureStream) Revoked() <-chan struct{} { return s.revoked }

func (s *captureStream) MimeType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mimeType
}

func (s *captureStream) setMimeType(mimeType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mimeType = mimeType
}

// discard closes a stream that never started.
func (s *captureStream) discard() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.chunks)
		s.mu.Unlock()
	})
}

func (s *captureStream) push(payload []byte) {
	data := make([]byte, len(payload))
	copy(data, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- data:
	default:
		s.bridge.logger.Warnw("Recording chunk buffer full, dropping message", "bytes", len(data))
	}
}

func (s *captureStream) revoke() {
	s.revokeOnce.Do(func() { close(s.revoked) })
}

func (s *captureStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stop asks the recorder to flush and closes Chunks once it confirmed or
// the bridge is gone.
func (s *captureStream) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		_, reqErr := s.bridge.request(ctx, TypeCaptureStop, nil)
		if reqErr != nil && !errors.Is(reqErr, ErrClosed) {
			err = fmt.Errorf("failed to stop screen capture: %w", reqErr)
		}
		s.mu.Lock()
		s.closed = true
		close(s.chunks)
		s.mu.Unlock()
	})
	return err
}

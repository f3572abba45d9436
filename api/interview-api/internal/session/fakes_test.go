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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

// =============================================================================
// Media
// =============================================================================

type fakeTrack struct {
	kind internal_type.TrackKind
}

func (f *fakeTrack) Kind() internal_type.TrackKind          { return f.kind }
func (f *fakeTrack) SetEnabled(context.Context, bool) error { return nil }
func (f *fakeTrack) Close() error                           { return nil }

type fakeConnection struct {
	events    chan internal_type.RemoteParticipantEvent
	leaves    atomic.Int32
	leaveOnce sync.Once
	deviceErr error
}

func (c *fakeConnection) Publish(_ context.Context, kind internal_type.TrackKind) (internal_type.LocalTrack, error) {
	if c.deviceErr != nil && kind == internal_type.TrackVideo {
		return nil, c.deviceErr
	}
	return &fakeTrack{kind: kind}, nil
}

func (c *fakeConnection) Unpublish(context.Context, internal_type.LocalTrack) error { return nil }

func (c *fakeConnection) Events() <-chan internal_type.RemoteParticipantEvent { return c.events }

func (c *fakeConnection) Leave(context.Context) error {
	c.leaves.Add(1)
	c.leaveOnce.Do(func() { close(c.events) })
	return nil
}

// emit delivers a remote event unless the connection already left.
func (c *fakeConnection) emit(ev internal_type.RemoteParticipantEvent) {
	defer func() { _ = recover() }()
	c.events <- ev
}

type fakeTransport struct {
	mu        sync.Mutex
	conns     []*fakeConnection
	joinErr   error
	deviceErr error
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Join(_ context.Context, _ string, _ internal_type.Credentials) (internal_type.TransportConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	conn := &fakeConnection{events: make(chan internal_type.RemoteParticipantEvent, 8), deviceErr: f.deviceErr}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeTransport) joins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeTransport) conn() *fakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *fakeTransport) leaves() int32 {
	if c := f.conn(); c != nil {
		return c.leaves.Load()
	}
	return 0
}

// =============================================================================
// Speech
// =============================================================================

type fakeRecognizer struct {
	mu      sync.Mutex
	handler internal_type.RecognitionHandler
}

func (r *fakeRecognizer) Start(_ context.Context, handler internal_type.RecognitionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = nil
	return nil
}

func (r *fakeRecognizer) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler != nil
}

func (r *fakeRecognizer) say(text string) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.OnFragment(internal_type.TranscriptFragment{Text: text, Final: true})
	}
}

type fakeSynth struct {
	recognizer *fakeRecognizer

	mu          sync.Mutex
	spoken      []string
	heardItself bool
}

func (s *fakeSynth) Speak(_ context.Context, text string) error {
	heard := s.recognizer.running()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	s.heardItself = s.heardItself || heard
	return nil
}

func (s *fakeSynth) Cancel() error { return nil }

func (s *fakeSynth) utterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *fakeSynth) selfListened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heardItself
}

// =============================================================================
// Recording
// =============================================================================

type fakeCloud struct {
	starts   atomic.Int32
	stops    atomic.Int32
	startErr error
}

func (f *fakeCloud) Start(_ context.Context, interviewID string) (internal_type.RecordingHandle, error) {
	f.starts.Add(1)
	if f.startErr != nil {
		return internal_type.RecordingHandle{}, f.startErr
	}
	return internal_type.RecordingHandle{ResourceID: "res-" + interviewID, SID: "sid-" + interviewID}, nil
}

func (f *fakeCloud) Stop(context.Context, string) error {
	f.stops.Add(1)
	return nil
}

type fakeStream struct {
	chunks   chan []byte
	revoked  chan struct{}
	stopOnce sync.Once
	stops    atomic.Int32
}

func (s *fakeStream) Chunks() <-chan []byte    { return s.chunks }
func (s *fakeStream) Revoked() <-chan struct{} { return s.revoked }
func (s *fakeStream) MimeType() string         { return "video/webm" }

func (s *fakeStream) Stop(context.Context) error {
	s.stops.Add(1)
	s.stopOnce.Do(func() { close(s.chunks) })
	return nil
}

type fakeCapture struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
}

func (f *fakeCapture) Capture(context.Context, internal_type.MediaSources) (internal_type.CaptureStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	stream := &fakeStream{chunks: make(chan []byte, 4), revoked: make(chan struct{})}
	stream.chunks <- []byte("webm-chunk")
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()
	return stream, nil
}

func (f *fakeCapture) stops() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int32
	for _, s := range f.streams {
		n += s.stops.Load()
	}
	return n
}

type fakeUploader struct {
	calls atomic.Int32
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, _ internal_type.Recording, meta internal_type.UploadMetadata) (internal_type.UploadResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return internal_type.UploadResult{}, f.err
	}
	return internal_type.UploadResult{Location: "/uploads/recordings/interview-" + meta.InterviewID + ".mp4"}, nil
}

// =============================================================================
// Dialogue collaborators
// =============================================================================

// echoOracle acknowledges and repeats the next question it was asked to ask.
type echoOracle struct {
	calls  atomic.Int32
	fail   bool
	panics bool
}

func (o *echoOracle) Name() string { return "echo" }

func (o *echoOracle) NextUtterance(_ context.Context, _ []internal_type.ConversationTurn, instruction string) (string, error) {
	n := o.calls.Add(1)
	if o.panics {
		panic("oracle sdk: nil response body")
	}
	if o.fail {
		return "", errors.New("oracle unavailable")
	}
	const marker = `exactly as written: "`
	if i := strings.Index(instruction, marker); i >= 0 {
		return "Thank you. " + strings.TrimSuffix(instruction[i+len(marker):], `"`), nil
	}
	return fmt.Sprintf("Understood (reply %d).", n), nil
}

type fakeSink struct {
	mu      sync.Mutex
	results []*internal_type.InterviewResult
	err     error
	delay   time.Duration
}

func (f *fakeSink) Persist(_ context.Context, result *internal_type.InterviewResult) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

const waitFor = 2 * time.Second

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(commons.Name("browser-test"), commons.Path(t.TempDir()), commons.Level("debug"))
	require.NoError(t, err)
	return logger
}

// fakeBrowser is the client end of the talk socket.
type fakeBrowser struct {
	t    *testing.T
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (f *fakeBrowser) read() Envelope {
	f.t.Helper()
	require.NoError(f.t, f.conn.SetReadDeadline(time.Now().Add(waitFor)))
	messageType, payload, err := f.conn.ReadMessage()
	require.NoError(f.t, err)
	require.Equal(f.t, websocket.TextMessage, messageType)
	var env Envelope
	require.NoError(f.t, json.Unmarshal(payload, &env))
	return env
}

func (f *fakeBrowser) expect(typ MessageType) Envelope {
	f.t.Helper()
	env := f.read()
	require.Equal(f.t, typ, env.Type)
	return env
}

func (f *fakeBrowser) send(typ MessageType, id string, data interface{}) {
	f.t.Helper()
	env := Envelope{Type: typ, ID: id, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(f.t, err)
		env.Data = raw
	}
	payload, err := json.Marshal(env)
	require.NoError(f.t, err)
	f.wmu.Lock()
	defer f.wmu.Unlock()
	require.NoError(f.t, f.conn.WriteMessage(websocket.TextMessage, payload))
}

func (f *fakeBrowser) binary(data []byte) {
	f.t.Helper()
	f.wmu.Lock()
	defer f.wmu.Unlock()
	require.NoError(f.t, f.conn.WriteMessage(websocket.BinaryMessage, data))
}

func newBridgePair(t *testing.T) (Bridge, *fakeBrowser) {
	t.Helper()
	logger := newTestLogger(t)
	config := DefaultConfig()
	config.PingInterval = time.Minute

	bridges := make(chan Bridge, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b := NewBridge(logger, ws, config)
		bridges <- b
		_ = b.Serve(context.Background())
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var b Bridge
	select {
	case b = <-bridges:
	case <-time.After(waitFor):
		t.Fatal("bridge was not created")
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, &fakeBrowser{t: t, conn: client}
}

func async(fn func() error) <-chan error {
	out := make(chan error, 1)
	go func() { out <- fn() }()
	return out
}

func await(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitFor):
		t.Fatal("call did not return")
		return nil
	}
}

// =============================================================================
// Speech
// =============================================================================

func TestSynthesizer_SpeakRoundTrip(t *testing.T) {
	b, browser := newBridgePair(t)

	done := async(func() error { return b.Synthesizer().Speak(context.Background(), "Welcome, Sam.") })

	req := browser.expect(TypeSpeak)
	var data SpeakData
	require.NoError(t, json.Unmarshal(req.Data, &data))
	assert.Equal(t, "Welcome, Sam.", data.Text)
	assert.NotEmpty(t, req.ID)

	browser.send(TypeSpeakDone, req.ID, nil)
	assert.NoError(t, await(t, done))
}

func TestSynthesizer_SpeakErrorReply(t *testing.T) {
	b, browser := newBridgePair(t)

	done := async(func() error { return b.Synthesizer().Speak(context.Background(), "Hi") })
	req := browser.expect(TypeSpeak)
	browser.send(TypeSpeakError, req.ID, ErrorData{Message: "no voices installed"})

	err := await(t, done)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "no voices installed")
}

func TestSynthesizer_SpeakTimesOutAndCancels(t *testing.T) {
	b, browser := newBridgePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := b.Synthesizer().Speak(ctx, "Hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	browser.expect(TypeSpeak)

	require.NoError(t, b.Synthesizer().Cancel())
	browser.expect(TypeSpeakCancel)
}

type recordingHandler struct {
	mu        sync.Mutex
	fragments []internal_type.TranscriptFragment
	ends      int
}

func (h *recordingHandler) OnFragment(f internal_type.TranscriptFragment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fragments = append(h.fragments, f)
}

func (h *recordingHandler) OnEnd() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends++
}

func (h *recordingHandler) snapshot() ([]internal_type.TranscriptFragment, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]internal_type.TranscriptFragment(nil), h.fragments...), h.ends
}

func TestRecognizer_ForwardsFragments(t *testing.T) {
	b, browser := newBridgePair(t)
	handler := &recordingHandler{}

	require.NoError(t, b.Recognizer().Start(context.Background(), handler))
	browser.expect(TypeListenStart)

	browser.send(TypeTranscript, "", internal_type.TranscriptFragment{Text: "I think", Final: false})
	browser.send(TypeTranscript, "", internal_type.TranscriptFragment{Text: "I think so.", Final: true})
	assert.Eventually(t, func() bool {
		fragments, _ := handler.snapshot()
		return len(fragments) == 2
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, b.Recognizer().Stop())
	browser.expect(TypeListenStop)

	browser.send(TypeTranscript, "", internal_type.TranscriptFragment{Text: "late", Final: true})
	browser.send(TypeListenEnded, "", nil)
	time.Sleep(30 * time.Millisecond)
	fragments, ends := handler.snapshot()
	assert.Len(t, fragments, 2, "fragments after Stop are dropped")
	assert.Equal(t, 0, ends)
	assert.True(t, fragments[1].Final)
}

func TestRecognizer_EngineEnd(t *testing.T) {
	b, browser := newBridgePair(t)
	handler := &recordingHandler{}

	require.NoError(t, b.Recognizer().Start(context.Background(), handler))
	browser.expect(TypeListenStart)
	browser.send(TypeListenEnded, "", nil)

	assert.Eventually(t, func() bool {
		_, ends := handler.snapshot()
		return ends == 1
	}, waitFor, 5*time.Millisecond)
	assert.NoError(t, b.Recognizer().Stop(), "stopping an ended run is a no-op")
}

// =============================================================================
// Screen capture
// =============================================================================

func TestCapture_ChunksAndStop(t *testing.T) {
	b, browser := newBridgePair(t)

	type captured struct {
		stream internal_type.CaptureStream
		err    error
	}
	out := make(chan captured, 1)
	go func() {
		s, err := b.Capture().Capture(context.Background(), internal_type.MediaSources{Screen: true, MicrophoneAudio: true, Timeslice: time.Second})
		out <- captured{s, err}
	}()

	req := browser.expect(TypeCaptureStart)
	var data CaptureData
	require.NoError(t, json.Unmarshal(req.Data, &data))
	assert.True(t, data.Screen)
	assert.False(t, data.SystemAudio)
	assert.Equal(t, int64(1000), data.TimesliceMs)
	browser.send(TypeCaptureStarted, req.ID, CaptureStartedData{MimeType: "video/webm;codecs=vp9,opus"})

	c := <-out
	require.NoError(t, c.err)
	assert.Equal(t, "video/webm;codecs=vp9,opus", c.stream.MimeType())

	browser.binary([]byte("one"))
	browser.binary([]byte("two"))

	_, err := b.Capture().Capture(context.Background(), internal_type.MediaSources{Screen: true})
	assert.ErrorIs(t, err, ErrCaptureActive)

	stopped := async(func() error { return c.stream.Stop(context.Background()) })
	stopReq := browser.expect(TypeCaptureStop)
	browser.binary([]byte("three"))
	browser.send(TypeCaptureStopped, stopReq.ID, nil)
	require.NoError(t, await(t, stopped))

	var got []string
	for chunk := range c.stream.Chunks() {
		got = append(got, string(chunk))
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.NoError(t, c.stream.Stop(context.Background()), "second stop is a no-op")
}

func TestCapture_Denied(t *testing.T) {
	b, browser := newBridgePair(t)

	done := async(func() error {
		_, err := b.Capture().Capture(context.Background(), internal_type.MediaSources{Screen: true})
		return err
	})
	req := browser.expect(TypeCaptureStart)
	browser.send(TypeCaptureDenied, req.ID, ErrorData{Message: "NotAllowedError"})

	err := await(t, done)
	assert.ErrorIs(t, err, internal_type.ErrPermissionDenied)
}

func TestCapture_Revoked(t *testing.T) {
	b, browser := newBridgePair(t)

	out := make(chan internal_type.CaptureStream, 1)
	go func() {
		s, _ := b.Capture().Capture(context.Background(), internal_type.MediaSources{Screen: true})
		out <- s
	}()
	req := browser.expect(TypeCaptureStart)
	browser.send(TypeCaptureStarted, req.ID, CaptureStartedData{MimeType: "video/webm"})
	stream := <-out
	require.NotNil(t, stream)

	browser.send(TypeCaptureRevoked, "", nil)
	select {
	case <-stream.Revoked():
	case <-time.After(waitFor):
		t.Fatal("revocation not delivered")
	}
}

// =============================================================================
// Relay transport
// =============================================================================

func TestTransport_JoinPublishLeave(t *testing.T) {
	b, browser := newBridgePair(t)
	transport := b.Transport()
	assert.Equal(t, TransportName, transport.Name())

	type joined struct {
		conn internal_type.TransportConnection
		err  error
	}
	out := make(chan joined, 1)
	go func() {
		conn, err := transport.Join(context.Background(), "interview_42", internal_type.Credentials{UID: "interviewer", Token: "tok"})
		out <- joined{conn, err}
	}()
	req := browser.expect(TypeJoin)
	var join JoinData
	require.NoError(t, json.Unmarshal(req.Data, &join))
	assert.Equal(t, JoinData{Channel: "interview_42", UID: "interviewer", Token: "tok"}, join)
	browser.send(TypeJoined, req.ID, nil)
	j := <-out
	require.NoError(t, j.err)
	conn := j.conn

	_, err := transport.Join(context.Background(), "interview_42", internal_type.Credentials{})
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	audio := make(chan error, 1)
	var track internal_type.LocalTrack
	go func() {
		var err error
		track, err = conn.Publish(context.Background(), internal_type.TrackAudio)
		audio <- err
	}()
	req = browser.expect(TypePublish)
	browser.send(TypePublished, req.ID, nil)
	require.NoError(t, await(t, audio))
	assert.Equal(t, internal_type.TrackAudio, track.Kind())

	video := async(func() error {
		_, err := conn.Publish(context.Background(), internal_type.TrackVideo)
		return err
	})
	req = browser.expect(TypePublish)
	browser.send(TypeDeviceError, req.ID, ErrorData{Message: "camera busy"})
	assert.ErrorIs(t, await(t, video), internal_type.ErrDeviceUnavailable)

	require.NoError(t, track.SetEnabled(context.Background(), false))
	toggled := browser.expect(TypeTrackEnabled)
	var td TrackData
	require.NoError(t, json.Unmarshal(toggled.Data, &td))
	assert.Equal(t, TrackData{Kind: internal_type.TrackAudio, Enabled: false}, td)

	browser.send(TypeParticipant, "", internal_type.RemoteParticipantEvent{Type: internal_type.ParticipantJoined, ParticipantID: "candidate"})
	select {
	case ev := <-conn.Events():
		assert.Equal(t, internal_type.ParticipantJoined, ev.Type)
		assert.False(t, ev.At.IsZero())
	case <-time.After(waitFor):
		t.Fatal("participant event not delivered")
	}

	require.NoError(t, conn.Leave(context.Background()))
	browser.expect(TypeLeave)
	require.NoError(t, conn.Leave(context.Background()))
	_, open := <-conn.Events()
	assert.False(t, open)
}

func TestNegotiate(t *testing.T) {
	b, browser := newBridgePair(t)

	answer := make(chan string, 1)
	go func() {
		sdp, _ := b.Negotiate(context.Background(), "interview_42", "v=0 offer")
		answer <- sdp
	}()
	req := browser.expect(TypeOffer)
	var offer SDPData
	require.NoError(t, json.Unmarshal(req.Data, &offer))
	assert.Equal(t, "v=0 offer", offer.SDP)
	browser.send(TypeAnswer, req.ID, SDPData{SDP: "v=0 answer"})

	select {
	case sdp := <-answer:
		assert.Equal(t, "v=0 answer", sdp)
	case <-time.After(waitFor):
		t.Fatal("negotiation did not finish")
	}
}

func TestRequest_ErrorReply(t *testing.T) {
	b, browser := newBridgePair(t)

	done := async(func() error {
		_, err := b.Negotiate(context.Background(), "c", "offer")
		return err
	})
	req := browser.expect(TypeOffer)
	browser.send(TypeError, req.ID, ErrorData{Code: "webrtc", Message: "unsupported codec"})

	err := await(t, done)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "unsupported codec")
}

// =============================================================================
// Controls and lifecycle
// =============================================================================

func TestControls(t *testing.T) {
	b, browser := newBridgePair(t)

	browser.send(TypeSubmitAnswer, "", nil)
	browser.send(TypeToggleTrack, "", TrackData{Kind: internal_type.TrackVideo, Enabled: false})
	browser.send(TypeHangup, "", HangupData{Reason: "candidate-hangup"})
	browser.send(TypeReshare, "", nil)

	var got []Control
	for len(got) < 4 {
		select {
		case c := <-b.Controls():
			got = append(got, c)
		case <-time.After(waitFor):
			t.Fatalf("only %d controls delivered", len(got))
		}
	}
	assert.Equal(t, TypeSubmitAnswer, got[0].Type)
	assert.Equal(t, Control{Type: TypeToggleTrack, Kind: internal_type.TrackVideo}, got[1])
	assert.Equal(t, Control{Type: TypeHangup, Reason: "candidate-hangup"}, got[2])
	assert.Equal(t, Control{Type: TypeReshare}, got[3])
}

func TestPingIsAnswered(t *testing.T) {
	_, browser := newBridgePair(t)
	browser.send(TypePing, "", nil)
	browser.expect(TypePong)
}

func TestClose_ReleasesWaiters(t *testing.T) {
	b, browser := newBridgePair(t)

	joined := make(chan internal_type.TransportConnection, 1)
	go func() {
		conn, _ := b.Transport().Join(context.Background(), "c", internal_type.Credentials{})
		joined <- conn
	}()
	req := browser.expect(TypeJoin)
	browser.send(TypeJoined, req.ID, nil)
	conn := <-joined
	require.NotNil(t, conn)

	pending := async(func() error { return b.Synthesizer().Speak(context.Background(), "never answered") })
	browser.expect(TypeSpeak)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, await(t, pending), ErrClosed)

	select {
	case ev := <-conn.Events():
		assert.Equal(t, internal_type.ParticipantLeft, ev.Type)
	case <-time.After(waitFor):
		t.Fatal("participant-left not emitted on close")
	}
	_, open := <-b.Controls()
	assert.False(t, open)
	assert.ErrorIs(t, b.Notify(TypeState, nil), ErrClosed)
	assert.NoError(t, b.Close())
}

func TestClientDisconnectClosesBridge(t *testing.T) {
	b, browser := newBridgePair(t)
	require.NoError(t, browser.conn.Close())

	select {
	case <-b.Done():
	case <-time.After(waitFor):
		t.Fatal("bridge did not notice the disconnect")
	}
}

func TestClose_FlushesQueuedNotifications(t *testing.T) {
	b, browser := newBridgePair(t)

	require.NoError(t, b.Notify(TypeEnded, EndedData{Reason: "questions-exhausted", Status: "completed"}))
	require.NoError(t, b.Close())

	env := browser.expect(TypeEnded)
	var data EndedData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "questions-exhausted", data.Reason)

	_, _, err := browser.conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

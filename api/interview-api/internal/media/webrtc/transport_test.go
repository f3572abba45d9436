// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media_webrtc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webrtc_internal "github.com/rapidaai/interview/api/interview-api/internal/media/webrtc/internal"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("webrtc-test"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

type recordingSignaler struct {
	mu     sync.Mutex
	offers []string
	err    error
}

func (s *recordingSignaler) Negotiate(_ context.Context, _ string, offer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, offer)
	return "", s.err
}

func TestNewTransport_AppliesOptions(t *testing.T) {
	mt, err := NewTransport(newTestLogger(t), &recordingSignaler{},
		WithICEServers([]webrtc_internal.ICEServer{{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"}}),
		WithRelayOnly(),
	)
	require.NoError(t, err)
	assert.Equal(t, "webrtc", mt.Name())

	tr := mt.(*transport)
	pcConfig := tr.peerConfiguration()
	require.Len(t, pcConfig.ICEServers, 1)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, pcConfig.ICEServers[0].URLs)
	assert.Equal(t, pionwebrtc.ICETransportPolicyRelay, pcConfig.ICETransportPolicy)
}

func TestNewTransport_ICEURLs(t *testing.T) {
	mt, err := NewTransport(newTestLogger(t), &recordingSignaler{}, WithICEURLs([]string{"stun:stun.example.com:3478"}))
	require.NoError(t, err)
	pcConfig := mt.(*transport).peerConfiguration()
	require.Len(t, pcConfig.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, pcConfig.ICEServers[0].URLs)

	mt, err = NewTransport(newTestLogger(t), &recordingSignaler{}, WithICEURLs(nil))
	require.NoError(t, err)
	assert.Len(t, mt.(*transport).peerConfiguration().ICEServers, 2)
}

func TestJoin_WithoutSignaler(t *testing.T) {
	mt, err := NewTransport(newTestLogger(t), nil)
	require.NoError(t, err)

	_, err = mt.Join(context.Background(), "chan", internal_type.Credentials{UID: "1"})
	assert.Error(t, err)
}

func TestJoin_SignalingFailure(t *testing.T) {
	sig := &recordingSignaler{err: errors.New("peer unreachable")}
	mt, err := NewTransport(newTestLogger(t), sig, WithICEServers(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = mt.Join(ctx, "interview_42", internal_type.Credentials{UID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signaling failed for channel interview_42")

	sig.mu.Lock()
	defer sig.mu.Unlock()
	require.Len(t, sig.offers, 1)
	// The offer receives both kinds so the candidate can publish camera and mic.
	assert.True(t, strings.Contains(sig.offers[0], "m=audio"))
	assert.True(t, strings.Contains(sig.offers[0], "m=video"))
	assert.True(t, strings.Contains(sig.offers[0], "a=recvonly"))
}

func TestTrackKind(t *testing.T) {
	assert.Equal(t, internal_type.TrackAudio, trackKind(pionwebrtc.RTPCodecTypeAudio))
	assert.Equal(t, internal_type.TrackVideo, trackKind(pionwebrtc.RTPCodecTypeVideo))
}

func TestLocalTrack_MuteDropsSamples(t *testing.T) {
	track, err := pionwebrtc.NewTrackLocalStaticSample(opusCapability(), "audio-test", "interviewer")
	require.NoError(t, err)

	lt := &LocalTrack{kind: internal_type.TrackAudio, track: track}
	lt.enabled.Store(true)
	assert.Equal(t, internal_type.TrackAudio, lt.Kind())

	require.NoError(t, lt.SetEnabled(context.Background(), false))
	assert.False(t, lt.enabled.Load())
	assert.NoError(t, lt.WriteSample(media.Sample{Data: []byte{0x01}, Duration: 20 * time.Millisecond}))

	require.NoError(t, lt.SetEnabled(context.Background(), true))
	// Unbound tracks accept samples without a receiver.
	assert.NoError(t, lt.WriteSample(media.Sample{Data: []byte{0x01}, Duration: 20 * time.Millisecond}))

	require.NoError(t, lt.Close())
	assert.NoError(t, lt.WriteSample(media.Sample{Data: []byte{0x01}, Duration: 20 * time.Millisecond}))
}

func TestConnection_EmitAfterLeaveIsDropped(t *testing.T) {
	c := &connection{
		logger:  newTestLogger(t),
		channel: "chan",
		events:  make(chan internal_type.RemoteParticipantEvent, 1),
	}
	c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.ParticipantJoined, ParticipantID: "cand"})
	// Buffer full: dropped with a warning rather than blocking.
	c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.TrackPublished, ParticipantID: "cand"})

	ev := <-c.events
	assert.Equal(t, internal_type.ParticipantJoined, ev.Type)
	assert.False(t, ev.At.IsZero())

	c.mu.Lock()
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	assert.NotPanics(t, func() {
		c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.ParticipantLeft, ParticipantID: "cand"})
	})
}

func TestConnection_EmitLeftAllOnce(t *testing.T) {
	c := &connection{
		logger:       newTestLogger(t),
		channel:      "chan",
		events:       make(chan internal_type.RemoteParticipantEvent, 4),
		joinedRemote: map[string]bool{"cand": true},
	}
	c.emitLeftAll()
	c.emitLeftAll()

	require.Len(t, c.events, 1)
	ev := <-c.events
	assert.Equal(t, internal_type.ParticipantLeft, ev.Type)
	assert.Equal(t, "cand", ev.ParticipantID)
}

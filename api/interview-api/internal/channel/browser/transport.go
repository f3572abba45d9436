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
	"time"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

const (
	TransportName        = "browser"
	eventBufferSize      = 32
	candidateParticipant = "candidate"
)

var ErrAlreadyJoined = errors.New("browser already joined a channel")

// relayTransport joins the call from the candidate's browser. Devices are
// the browser's camera and microphone.
type relayTransport struct {
	bridge *bridge

	mu   sync.Mutex
	conn *relayConnection
}

func (t *relayTransport) Name() string {
	return TransportName
}

func (t *relayTransport) Join(ctx context.Context, channel string, creds internal_type.Credentials) (internal_type.TransportConnection, error) {
	t.mu.Lock()
	if t.conn != nil && !t.conn.hasLeft() {
		t.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	t.mu.Unlock()

	if _, err := t.bridge.request(ctx, TypeJoin, JoinData{Channel: channel, UID: creds.UID, Token: creds.Token}); err != nil {
		return nil, fmt.Errorf("failed to join %s: %w", channel, err)
	}

	conn := &relayConnection{
		bridge:  t.bridge,
		channel: channel,
		events:  make(chan internal_type.RemoteParticipantEvent, eventBufferSize),
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return conn, nil
}

func (t *relayTransport) current() *relayConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *relayTransport) emit(event internal_type.RemoteParticipantEvent) {
	if conn := t.current(); conn != nil {
		conn.emit(event)
	}
}

// bridgeClosed reports the candidate as gone.
func (t *relayTransport) bridgeClosed() {
	t.emit(internal_type.RemoteParticipantEvent{
		Type:          internal_type.ParticipantLeft,
		ParticipantID: candidateParticipant,
		At:            time.Now(),
	})
}

type relayConnection struct {
	bridge  *bridge
	channel string
	events  chan internal_type.RemoteParticipantEvent

	mu   sync.Mutex
	left bool
}

func (c *relayConnection) Publish(ctx context.Context, kind internal_type.TrackKind) (internal_type.LocalTrack, error) {
	resp, err := c.bridge.request(ctx, TypePublish, TrackData{Kind: kind, Enabled: true})
	if err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", kind, err)
	}
	if resp.Type == TypeDeviceError {
		return nil, fmt.Errorf("%w: %s: %s", internal_type.ErrDeviceUnavailable, kind, errorMessage(resp))
	}
	return &relayTrack{conn: c, kind: kind}, nil
}

func (c *relayConnection) Unpublish(_ context.Context, track internal_type.LocalTrack) error {
	return ignoreClosed(c.bridge.Notify(TypeUnpublish, TrackData{Kind: track.Kind()}))
}

func (c *relayConnection) Events() <-chan internal_type.RemoteParticipantEvent {
	return c.events
}

func (c *relayConnection) Leave(_ context.Context) error {
	c.mu.Lock()
	if c.left {
		c.mu.Unlock()
		return nil
	}
	c.left = true
	close(c.events)
	c.mu.Unlock()

	return ignoreClosed(c.bridge.Notify(TypeLeave, nil))
}

func (c *relayConnection) hasLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

func (c *relayConnection) emit(event internal_type.RemoteParticipantEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left {
		return
	}
	select {
	case c.events <- event:
	default:
		c.bridge.logger.Warnw("Participant event channel full, dropping message", "type", event.Type, "channel", c.channel)
	}
}

type relayTrack struct {
	conn *relayConnection
	kind internal_type.TrackKind
}

func (t *relayTrack) Kind() internal_type.TrackKind {
	return t.kind
}

func (t *relayTrack) SetEnabled(_ context.Context, enabled bool) error {
	return ignoreClosed(t.conn.bridge.Notify(TypeTrackEnabled, TrackData{Kind: t.kind, Enabled: enabled}))
}

// Close is a no-op; the browser releases its devices on unpublish.
func (t *relayTrack) Close() error {
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// =============================================================================
// WebRTC signaling
// =============================================================================

func (b *bridge) Negotiate(ctx context.Context, channel, offerSDP string) (string, error) {
	resp, err := b.request(ctx, TypeOffer, SDPData{Channel: channel, SDP: offerSDP})
	if err != nil {
		return "", fmt.Errorf("failed to negotiate with browser: %w", err)
	}
	var answer SDPData
	if err := resp.decode(&answer); err != nil {
		return "", fmt.Errorf("failed to decode webrtc answer: %w", err)
	}
	if answer.SDP == "" {
		return "", fmt.Errorf("%w: empty webrtc answer", ErrRejected)
	}
	return answer.SDP, nil
}

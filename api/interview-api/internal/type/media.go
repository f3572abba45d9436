// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"context"
	"errors"
	"time"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// ErrDeviceUnavailable is returned by transports when a capture device is
// busy or access was denied.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// Credentials identify the local participant on a channel.
type Credentials struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

type RemoteEventType string

const (
	ParticipantJoined RemoteEventType = "participant-joined"
	TrackPublished    RemoteEventType = "track-published"
	TrackUnpublished  RemoteEventType = "track-unpublished"
	ParticipantLeft   RemoteEventType = "participant-left"
)

type RemoteParticipantEvent struct {
	Type          RemoteEventType `json:"type"`
	ParticipantID string          `json:"participantId"`
	Kind          TrackKind       `json:"kind,omitempty"`
	At            time.Time       `json:"at"`
}

// MediaTransport joins channels on an external pub/sub media bus.
type MediaTransport interface {
	Name() string
	Join(ctx context.Context, channel string, creds Credentials) (TransportConnection, error)
}

// TransportConnection is one joined channel.
type TransportConnection interface {
	// Publish acquires the capture device for kind and publishes it.
	Publish(ctx context.Context, kind TrackKind) (LocalTrack, error)
	Unpublish(ctx context.Context, track LocalTrack) error
	// Events is closed once the connection has left the channel.
	Events() <-chan RemoteParticipantEvent
	Leave(ctx context.Context) error
}

type LocalTrack interface {
	Kind() TrackKind
	// SetEnabled mutes or unmutes without renegotiating.
	SetEnabled(ctx context.Context, enabled bool) error
	// Close releases the capture device.
	Close() error
}

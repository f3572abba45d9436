// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package webrtc_internal

import "time"

// Opus audio constants (WebRTC standard: 48kHz)
const (
	OpusSampleRate  = 48000
	OpusChannels    = 2   // opus/48000/2 per RFC 7587, even for mono voice
	OpusPayloadType = 111 // Standard dynamic payload type for Opus
	OpusSDPFmtpLine = "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"
)

// VP8 video constants
const (
	VP8ClockRate   = 90000
	VP8PayloadType = 96
)

// Channel and buffer sizes
const (
	EventChannelSize     = 32   // Remote participant events waiting for the orchestrator
	RTPBufferSize        = 1500 // Max RTCP/RTP packet size (MTU)
	MaxConsecutiveErrors = 50   // Max read errors before a remote track is considered gone
)

// Timeouts
const (
	NegotiationTimeout = 10 * time.Second // offer -> answer round trip over signaling
	ConnectTimeout     = 15 * time.Second // answer applied -> ICE/DTLS connected
)

// Config holds WebRTC configuration
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"
	StreamID           string // media stream id of the interviewer's local tracks
}

// ICEServer represents a STUN/TURN server
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// DefaultConfig returns default WebRTC configuration
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
		StreamID:           "interviewer",
	}
}

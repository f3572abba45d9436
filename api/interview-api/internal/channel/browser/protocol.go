// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_browser

import (
	"encoding/json"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

// =============================================================================
// Message types
// =============================================================================

// MessageType names what Data holds. Binary frames from the browser carry
// recording chunks of the active capture and have no envelope.
type MessageType string

const (
	// server -> browser
	TypeSpeak        MessageType = "speak"         // Data: SpeakData, reply speak_done | speak_error
	TypeSpeakCancel  MessageType = "speak_cancel"  // Data: nil
	TypeListenStart  MessageType = "listen_start"  // Data: nil
	TypeListenStop   MessageType = "listen_stop"   // Data: nil
	TypeCaptureStart MessageType = "capture_start" // Data: CaptureData, reply capture_started | capture_denied
	TypeCaptureStop  MessageType = "capture_stop"  // Data: nil, reply capture_stopped
	TypeJoin         MessageType = "join"          // Data: JoinData, reply joined | error
	TypePublish      MessageType = "publish"       // Data: TrackData, reply published | device_error
	TypeUnpublish    MessageType = "unpublish"     // Data: TrackData
	TypeTrackEnabled MessageType = "track_enabled" // Data: TrackData
	TypeLeave        MessageType = "leave"         // Data: nil
	TypeOffer        MessageType = "webrtc_offer"  // Data: SDPData, reply webrtc_answer | error
	TypeState        MessageType = "state"         // Data: internal_type.InterviewSessionState
	TypeEnded        MessageType = "ended"         // Data: EndedData

	// browser -> server, replies
	TypeSpeakDone      MessageType = "speak_done"
	TypeSpeakError     MessageType = "speak_error"     // Data: ErrorData
	TypeCaptureStarted MessageType = "capture_started" // Data: CaptureStartedData
	TypeCaptureDenied  MessageType = "capture_denied"  // Data: ErrorData
	TypeCaptureStopped MessageType = "capture_stopped"
	TypeJoined         MessageType = "joined"
	TypePublished      MessageType = "published"
	TypeDeviceError    MessageType = "device_error"  // Data: ErrorData
	TypeAnswer         MessageType = "webrtc_answer" // Data: SDPData

	// browser -> server, events
	TypeTranscript     MessageType = "transcript"      // Data: internal_type.TranscriptFragment
	TypeListenEnded    MessageType = "listen_ended"    // Data: nil
	TypeCaptureRevoked MessageType = "capture_revoked" // Data: nil
	TypeParticipant    MessageType = "participant"     // Data: internal_type.RemoteParticipantEvent

	// browser -> server, controls
	TypeSubmitAnswer MessageType = "submit_answer" // Data: nil
	TypeHangup       MessageType = "hangup"        // Data: HangupData
	TypeToggleTrack  MessageType = "toggle_track"  // Data: TrackData
	TypeReshare      MessageType = "reshare"       // Data: nil

	// bidirectional
	TypeError MessageType = "error" // Data: ErrorData
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
)

// Envelope is every text frame in either direction. Replies carry the ID of
// the request they answer.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (e Envelope) decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// =============================================================================
// Payloads
// =============================================================================

type SpeakData struct {
	Text string `json:"text"`
}

type CaptureData struct {
	Screen          bool  `json:"screen"`
	SystemAudio     bool  `json:"systemAudio"`
	MicrophoneAudio bool  `json:"microphoneAudio"`
	TimesliceMs     int64 `json:"timesliceMs"`
}

type CaptureStartedData struct {
	MimeType string `json:"mimeType"`
}

type JoinData struct {
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	Token   string `json:"token"`
}

type TrackData struct {
	Kind    internal_type.TrackKind `json:"kind"`
	Enabled bool                    `json:"enabled"`
}

type SDPData struct {
	Channel string `json:"channel,omitempty"`
	SDP     string `json:"sdp"`
}

type HangupData struct {
	Reason string `json:"reason,omitempty"`
}

type EndedData struct {
	Reason string `json:"reason"`
	Status string `json:"status"`
}

type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Control is a candidate action the session has to act on.
type Control struct {
	Type    MessageType
	Kind    internal_type.TrackKind
	Enabled bool
	Reason  string
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media_webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	webrtc_internal "github.com/rapidaai/interview/api/interview-api/internal/media/webrtc/internal"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

// Signaler carries SDP between the service and the remote peer. Negotiate
// sends a complete (non-trickle) offer and returns the peer's answer.
type Signaler interface {
	Negotiate(ctx context.Context, channel string, offerSDP string) (string, error)
}

// ============================================================================
// transport: one pion PeerConnection per joined channel
// ============================================================================

type transport struct {
	logger   commons.Logger
	config   *webrtc_internal.Config
	signaler Signaler
	api      *pionwebrtc.API
}

type Option func(*webrtc_internal.Config)

func WithICEServers(servers []webrtc_internal.ICEServer) Option {
	return func(c *webrtc_internal.Config) { c.ICEServers = servers }
}

// WithICEURLs replaces the ICE servers with credential-less STUN urls.
func WithICEURLs(urls []string) Option {
	return func(c *webrtc_internal.Config) {
		if len(urls) > 0 {
			c.ICEServers = []webrtc_internal.ICEServer{{URLs: urls}}
		}
	}
}

func WithRelayOnly() Option {
	return func(c *webrtc_internal.Config) { c.ICETransportPolicy = "relay" }
}

// NewTransport builds a MediaTransport that joins a channel by negotiating a
// PeerConnection with the candidate's browser through signaler.
func NewTransport(logger commons.Logger, signaler Signaler, opts ...Option) (internal_type.MediaTransport, error) {
	cfg := webrtc_internal.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability(),
		PayloadType:        webrtc_internal.OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register Opus codec: %w", err)
	}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: vp8Capability(),
		PayloadType:        webrtc_internal.VP8PayloadType,
	}, pionwebrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register VP8 codec: %w", err)
	}

	// Interceptors (default includes NACK and RTCP reports)
	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	return &transport{
		logger:   logger,
		config:   cfg,
		signaler: signaler,
		api: pionwebrtc.NewAPI(
			pionwebrtc.WithMediaEngine(mediaEngine),
			pionwebrtc.WithInterceptorRegistry(registry),
		),
	}, nil
}

func opusCapability() pionwebrtc.RTPCodecCapability {
	return pionwebrtc.RTPCodecCapability{
		MimeType:    pionwebrtc.MimeTypeOpus,
		ClockRate:   webrtc_internal.OpusSampleRate,
		Channels:    webrtc_internal.OpusChannels,
		SDPFmtpLine: webrtc_internal.OpusSDPFmtpLine,
	}
}

func vp8Capability() pionwebrtc.RTPCodecCapability {
	return pionwebrtc.RTPCodecCapability{
		MimeType:  pionwebrtc.MimeTypeVP8,
		ClockRate: webrtc_internal.VP8ClockRate,
	}
}

func (t *transport) Name() string {
	return "webrtc"
}

func (t *transport) peerConfiguration() pionwebrtc.Configuration {
	iceServers := make([]pionwebrtc.ICEServer, len(t.config.ICEServers))
	for i, srv := range t.config.ICEServers {
		iceServers[i] = pionwebrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}
	pcConfig := pionwebrtc.Configuration{ICEServers: iceServers}
	if t.config.ICETransportPolicy == "relay" {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}
	return pcConfig
}

func (t *transport) Join(ctx context.Context, channel string, creds internal_type.Credentials) (internal_type.TransportConnection, error) {
	if t.signaler == nil {
		return nil, errors.New("webrtc transport has no signaler")
	}
	pc, err := t.api.NewPeerConnection(t.peerConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	c := &connection{
		logger:    t.logger,
		config:    t.config,
		signaler:  t.signaler,
		channel:   channel,
		uid:       creds.UID,
		pc:        pc,
		events:    make(chan internal_type.RemoteParticipantEvent, webrtc_internal.EventChannelSize),
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
	}
	c.setupPeerEventHandlers()

	// The candidate publishes; the service only receives until it adds its own tracks.
	for _, kind := range []pionwebrtc.RTPCodecType{pionwebrtc.RTPCodecTypeAudio, pionwebrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, pionwebrtc.RTPTransceiverInit{
			Direction: pionwebrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}

	if err := c.negotiate(ctx); err != nil {
		_ = pc.Close()
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, webrtc_internal.ConnectTimeout)
	defer cancel()
	select {
	case <-c.connected:
		return c, nil
	case <-c.failed:
		_ = pc.Close()
		return nil, fmt.Errorf("peer connection failed for channel %s", channel)
	case <-waitCtx.Done():
		_ = pc.Close()
		return nil, fmt.Errorf("timed out connecting channel %s: %w", channel, waitCtx.Err())
	}
}

// ============================================================================
// connection
// ============================================================================

type connection struct {
	logger   commons.Logger
	config   *webrtc_internal.Config
	signaler Signaler
	channel  string
	uid      string

	pc *pionwebrtc.PeerConnection

	// negotiationMu serialises offer/answer rounds (join, publish, unpublish).
	negotiationMu sync.Mutex

	mu           sync.Mutex
	leaving      bool
	closed       bool
	joinedRemote map[string]bool
	events       chan internal_type.RemoteParticipantEvent

	connectedOnce sync.Once
	connected     chan struct{}
	failedOnce    sync.Once
	failed        chan struct{}

	readers sync.WaitGroup
}

func (c *connection) setupPeerEventHandlers() {
	c.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		c.logger.Infow("WebRTC connection state changed", "state", state, "channel", c.channel)
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			c.connectedOnce.Do(func() { close(c.connected) })
		case pionwebrtc.PeerConnectionStateFailed, pionwebrtc.PeerConnectionStateClosed:
			c.failedOnce.Do(func() { close(c.failed) })
			c.emitLeftAll()
		case pionwebrtc.PeerConnectionStateDisconnected:
			// Transient; ICE may recover.
			c.logger.Warnw("WebRTC peer disconnected", "channel", c.channel)
		}
	})

	c.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		kind := trackKind(track.Kind())
		participant := track.StreamID()
		c.logger.Infow("Remote track received", "channel", c.channel, "participant", participant, "kind", kind, "codec", track.Codec().MimeType)

		c.mu.Lock()
		if c.joinedRemote == nil {
			c.joinedRemote = make(map[string]bool)
		}
		first := !c.joinedRemote[participant]
		c.joinedRemote[participant] = true
		c.mu.Unlock()

		if first {
			c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.ParticipantJoined, ParticipantID: participant})
		}
		c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.TrackPublished, ParticipantID: participant, Kind: kind})

		c.readers.Add(1)
		go c.readRemoteTrack(track, participant, kind)
	})
}

// readRemoteTrack drains RTP so interceptors keep running, and reports the
// track as unpublished once the remote side stops sending.
func (c *connection) readRemoteTrack(track *pionwebrtc.TrackRemote, participant string, kind internal_type.TrackKind) {
	defer c.readers.Done()

	var (
		pkt               *rtp.Packet
		err               error
		packets, bytes    int
		consecutiveErrors int
	)
	for {
		pkt, _, err = track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			consecutiveErrors++
			if consecutiveErrors >= webrtc_internal.MaxConsecutiveErrors {
				c.logger.Errorw("Too many consecutive read errors, dropping remote track", "channel", c.channel, "kind", kind, "lastError", err)
				break
			}
			continue
		}
		consecutiveErrors = 0
		packets++
		bytes += len(pkt.Payload)
	}

	c.logger.Debugw("Remote track ended", "channel", c.channel, "participant", participant, "kind", kind, "packets", packets, "bytes", bytes)
	c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.TrackUnpublished, ParticipantID: participant, Kind: kind})
}

func trackKind(t pionwebrtc.RTPCodecType) internal_type.TrackKind {
	if t == pionwebrtc.RTPCodecTypeVideo {
		return internal_type.TrackVideo
	}
	return internal_type.TrackAudio
}

// emit is a non-blocking send that is safe after Leave.
func (c *connection) emit(ev internal_type.RemoteParticipantEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warnw("Event channel full, dropping remote event", "type", ev.Type, "channel", c.channel)
	}
}

func (c *connection) emitLeftAll() {
	c.mu.Lock()
	participants := make([]string, 0, len(c.joinedRemote))
	for p, joined := range c.joinedRemote {
		if joined {
			participants = append(participants, p)
			c.joinedRemote[p] = false
		}
	}
	c.mu.Unlock()
	for _, p := range participants {
		c.emit(internal_type.RemoteParticipantEvent{Type: internal_type.ParticipantLeft, ParticipantID: p})
	}
}

// negotiate runs one complete offer/answer round.
func (c *connection) negotiate(ctx context.Context) error {
	c.negotiationMu.Lock()
	defer c.negotiationMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, webrtc_internal.NegotiationTimeout)
	defer cancel()

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gatherComplete := pionwebrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fmt.Errorf("ICE gathering did not complete: %w", ctx.Err())
	}

	answer, err := c.signaler.Negotiate(ctx, c.channel, c.pc.LocalDescription().SDP)
	if err != nil {
		return fmt.Errorf("signaling failed for channel %s: %w", c.channel, err)
	}
	if err := c.pc.SetRemoteDescription(pionwebrtc.SessionDescription{
		Type: pionwebrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fmt.Errorf("failed to apply answer: %w", err)
	}
	return nil
}

func (c *connection) Publish(ctx context.Context, kind internal_type.TrackKind) (internal_type.LocalTrack, error) {
	capability := opusCapability()
	if kind == internal_type.TrackVideo {
		capability = vp8Capability()
	}
	track, err := pionwebrtc.NewTrackLocalStaticSample(capability, fmt.Sprintf("%s-%s", kind, uuid.NewString()), c.config.StreamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create local %s track: %w: %w", kind, internal_type.ErrDeviceUnavailable, err)
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to attach local %s track: %w: %w", kind, internal_type.ErrDeviceUnavailable, err)
	}

	// Read incoming RTCP so NACK and report interceptors keep working.
	c.readers.Add(1)
	go func() {
		defer c.readers.Done()
		buf := make([]byte, webrtc_internal.RTPBufferSize)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	if err := c.negotiate(ctx); err != nil {
		_ = c.pc.RemoveTrack(sender)
		return nil, err
	}

	lt := &LocalTrack{kind: kind, track: track, sender: sender}
	lt.enabled.Store(true)
	return lt, nil
}

func (c *connection) Unpublish(ctx context.Context, track internal_type.LocalTrack) error {
	lt, ok := track.(*LocalTrack)
	if !ok {
		return fmt.Errorf("track %T was not published by this transport", track)
	}
	if err := c.pc.RemoveTrack(lt.sender); err != nil {
		return fmt.Errorf("failed to remove %s track: %w", lt.kind, err)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.pc.ConnectionState() != pionwebrtc.PeerConnectionStateConnected {
		return nil
	}
	return c.negotiate(ctx)
}

func (c *connection) Events() <-chan internal_type.RemoteParticipantEvent {
	return c.events
}

// Leave closes the peer connection. Safe to call more than once.
func (c *connection) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.leaving {
		c.mu.Unlock()
		return nil
	}
	c.leaving = true
	c.mu.Unlock()

	err := c.pc.Close()
	c.emitLeftAll()

	c.mu.Lock()
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	c.readers.Wait()
	if err != nil {
		return fmt.Errorf("failed to close peer connection for %s: %w", c.channel, err)
	}
	return nil
}

// ============================================================================
// LocalTrack
// ============================================================================

// LocalTrack is a server-published track. Samples written while disabled are
// dropped, which mutes the track without renegotiation.
type LocalTrack struct {
	kind    internal_type.TrackKind
	track   *pionwebrtc.TrackLocalStaticSample
	sender  *pionwebrtc.RTPSender
	enabled atomic.Bool
	closed  atomic.Bool
}

func (t *LocalTrack) Kind() internal_type.TrackKind {
	return t.kind
}

func (t *LocalTrack) SetEnabled(_ context.Context, enabled bool) error {
	t.enabled.Store(enabled)
	return nil
}

// WriteSample forwards an encoded frame when the track is live.
func (t *LocalTrack) WriteSample(sample media.Sample) error {
	if t.closed.Load() || !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(sample)
}

func (t *LocalTrack) Close() error {
	t.closed.Store(true)
	return nil
}

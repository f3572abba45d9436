// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var (
	ErrAlreadyConnecting = errors.New("join already in flight for channel")
	ErrConnectionFailed  = errors.New("media connection failed")
	ErrAlreadyPublished  = errors.New("track kind already published")
	ErrTrackNotPublished = errors.New("track kind not published")
	ErrDisconnected      = errors.New("media connection released")
	ErrInvalidChannel    = errors.New("channel name is required")
	ErrNoTransport       = errors.New("no media transport for channel")
	ErrDeviceUnavailable = internal_type.ErrDeviceUnavailable
)

// ConnectionState is the per-channel join state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// TrackSet selects which local tracks to publish.
type TrackSet struct {
	Audio bool `mapstructure:"audio"`
	Video bool `mapstructure:"video"`
}

func (t TrackSet) kinds() []internal_type.TrackKind {
	kinds := make([]internal_type.TrackKind, 0, 2)
	if t.Audio {
		kinds = append(kinds, internal_type.TrackAudio)
	}
	if t.Video {
		kinds = append(kinds, internal_type.TrackVideo)
	}
	return kinds
}

// ConnectionHandle is one acquisition of a channel connection. Every handle
// returned by Connect must be given back through Disconnect.
type ConnectionHandle struct {
	id       string
	channel  string
	session  *channelSession
	released bool
}

func (h *ConnectionHandle) ID() string {
	return h.id
}

func (h *ConnectionHandle) Channel() string {
	return h.channel
}

// channelSession is the registry entry for one channel. state and refs are
// guarded by the manager lock; tracks and transport calls by opMu.
type channelSession struct {
	channel   string
	state     ConnectionState
	refs      int
	transport internal_type.MediaTransport
	conn      internal_type.TransportConnection
	joinedAt  time.Time

	opMu   sync.Mutex
	tracks map[internal_type.TrackKind]internal_type.LocalTrack
}

type connectOptions struct {
	transport internal_type.MediaTransport
}

type ConnectOption func(*connectOptions)

// WithTransport joins through t instead of the manager's default transport.
// Each candidate connection brings its own transport while the channel
// registry stays shared by the process.
func WithTransport(t internal_type.MediaTransport) ConnectOption {
	return func(o *connectOptions) { o.transport = t }
}

// SessionManager owns every media connection of the process, keyed by
// channel name.
type SessionManager interface {
	// Connect acquires the channel. A join already in flight fails with
	// ErrAlreadyConnecting; an established connection is shared and its
	// reference count raised.
	Connect(ctx context.Context, channel string, creds internal_type.Credentials, opts ...ConnectOption) (*ConnectionHandle, error)

	// PublishLocalTracks acquires capture devices and publishes them. A device
	// failure rolls back this call's tracks and releases the handle; the
	// channel is left when no other handle holds it. ErrDeviceUnavailable is
	// returned either way.
	PublishLocalTracks(ctx context.Context, handle *ConnectionHandle, tracks TrackSet) error

	// SetTrackEnabled mutes or unmutes a published track.
	SetTrackEnabled(ctx context.Context, handle *ConnectionHandle, kind internal_type.TrackKind, enabled bool) error

	// SubscribeRemote returns the remote participant event stream. The
	// stream closes when the connection leaves and cannot be resumed.
	SubscribeRemote(handle *ConnectionHandle) (<-chan internal_type.RemoteParticipantEvent, error)

	// Disconnect releases the handle. The last release unpublishes every
	// local track, frees capture devices and leaves the channel. Releasing
	// twice, or releasing a nil handle, is a no-op.
	Disconnect(ctx context.Context, handle *ConnectionHandle) error

	State(channel string) ConnectionState
	Refs(channel string) int
}

type sessionManager struct {
	logger    commons.Logger
	transport internal_type.MediaTransport

	mu       sync.Mutex
	sessions map[string]*channelSession
}

// NewSessionManager builds the process-wide manager. transport is the
// default for Connect calls without WithTransport and may be nil.
func NewSessionManager(logger commons.Logger, transport internal_type.MediaTransport) SessionManager {
	return &sessionManager{
		logger:    logger,
		transport: transport,
		sessions:  make(map[string]*channelSession),
	}
}

func (m *sessionManager) Connect(ctx context.Context, channel string, creds internal_type.Credentials, opts ...ConnectOption) (*ConnectionHandle, error) {
	if channel == "" {
		return nil, ErrInvalidChannel
	}
	o := connectOptions{transport: m.transport}
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[channel]; ok {
		switch existing.state {
		case StateConnecting:
			m.mu.Unlock()
			m.logger.Warnw("Join already in flight, rejecting duplicate", "channel", channel)
			return nil, ErrAlreadyConnecting
		case StateConnected:
			existing.refs++
			refs := existing.refs
			m.mu.Unlock()
			m.logger.Debugw("Reusing connected channel", "channel", channel, "refs", refs)
			return newHandle(existing), nil
		}
	}
	if o.transport == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: channel %s: %w", ErrConnectionFailed, channel, ErrNoTransport)
	}
	sess := &channelSession{
		channel:   channel,
		state:     StateConnecting,
		transport: o.transport,
		tracks:    make(map[internal_type.TrackKind]internal_type.LocalTrack),
	}
	m.sessions[channel] = sess
	m.mu.Unlock()

	start := time.Now()
	conn, err := sess.transport.Join(ctx, channel, creds)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.sessions, channel)
		sess.state = StateDisconnected
		m.logger.Errorw("Failed to join channel", "channel", channel, "transport", sess.transport.Name(), "error", err)
		return nil, fmt.Errorf("%w: channel %s: %w", ErrConnectionFailed, channel, err)
	}
	sess.conn = conn
	sess.state = StateConnected
	sess.refs = 1
	sess.joinedAt = time.Now()
	m.logger.Infow("Joined channel", "channel", channel, "transport", sess.transport.Name(), "took", time.Since(start).String())
	return newHandle(sess), nil
}

func newHandle(sess *channelSession) *ConnectionHandle {
	return &ConnectionHandle{
		id:      uuid.New().String(),
		channel: sess.channel,
		session: sess,
	}
}

// live returns the session behind a handle that is still usable.
func (m *sessionManager) live(handle *ConnectionHandle) (*channelSession, error) {
	if handle == nil {
		return nil, ErrDisconnected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if handle.released || handle.session.state != StateConnected {
		return nil, ErrDisconnected
	}
	return handle.session, nil
}

func (m *sessionManager) PublishLocalTracks(ctx context.Context, handle *ConnectionHandle, tracks TrackSet) error {
	sess, err := m.live(handle)
	if err != nil {
		return err
	}

	sess.opMu.Lock()
	kinds := tracks.kinds()
	for _, kind := range kinds {
		if _, ok := sess.tracks[kind]; ok {
			sess.opMu.Unlock()
			return fmt.Errorf("%w: %s on %s", ErrAlreadyPublished, kind, sess.channel)
		}
	}

	published := make([]internal_type.LocalTrack, 0, len(kinds))
	for _, kind := range kinds {
		track, err := sess.conn.Publish(ctx, kind)
		if err == nil {
			published = append(published, track)
			continue
		}

		m.rollbackTracks(ctx, sess, published)
		sess.opMu.Unlock()
		if errors.Is(err, ErrDeviceUnavailable) {
			m.logger.Errorw("Capture device unavailable, releasing handle", "channel", sess.channel, "kind", kind, "error", err)
			if leaveErr := m.Disconnect(ctx, handle); leaveErr != nil {
				m.logger.Warnw("Rollback leave failed", "channel", sess.channel, "error", leaveErr)
			}
		}
		return fmt.Errorf("failed to publish %s track on %s: %w", kind, sess.channel, err)
	}

	for _, track := range published {
		sess.tracks[track.Kind()] = track
	}
	sess.opMu.Unlock()
	m.logger.Infow("Published local tracks", "channel", sess.channel, "audio", tracks.Audio, "video", tracks.Video)
	return nil
}

// rollbackTracks undoes a partially successful publish. Caller holds opMu.
func (m *sessionManager) rollbackTracks(ctx context.Context, sess *channelSession, tracks []internal_type.LocalTrack) {
	for _, track := range tracks {
		if err := sess.conn.Unpublish(ctx, track); err != nil {
			m.logger.Warnw("Failed to unpublish during rollback", "channel", sess.channel, "kind", track.Kind(), "error", err)
		}
		if err := track.Close(); err != nil {
			m.logger.Warnw("Failed to release device during rollback", "channel", sess.channel, "kind", track.Kind(), "error", err)
		}
	}
}

func (m *sessionManager) SetTrackEnabled(ctx context.Context, handle *ConnectionHandle, kind internal_type.TrackKind, enabled bool) error {
	sess, err := m.live(handle)
	if err != nil {
		return err
	}
	sess.opMu.Lock()
	track, ok := sess.tracks[kind]
	sess.opMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrTrackNotPublished, kind, sess.channel)
	}
	if err := track.SetEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("failed to set %s enabled=%t on %s: %w", kind, enabled, sess.channel, err)
	}
	m.logger.Debugw("Track toggled", "channel", sess.channel, "kind", kind, "enabled", enabled)
	return nil
}

func (m *sessionManager) SubscribeRemote(handle *ConnectionHandle) (<-chan internal_type.RemoteParticipantEvent, error) {
	sess, err := m.live(handle)
	if err != nil {
		return nil, err
	}
	return sess.conn.Events(), nil
}

func (m *sessionManager) Disconnect(ctx context.Context, handle *ConnectionHandle) error {
	if handle == nil {
		return nil
	}

	m.mu.Lock()
	if handle.released {
		m.mu.Unlock()
		return nil
	}
	handle.released = true
	sess := handle.session
	if sess.state != StateConnected {
		m.mu.Unlock()
		return nil
	}
	sess.refs--
	if sess.refs > 0 {
		refs := sess.refs
		m.mu.Unlock()
		m.logger.Debugw("Released channel handle", "channel", sess.channel, "refs", refs)
		return nil
	}
	m.mu.Unlock()

	return m.teardown(ctx, sess)
}

// teardown unpublishes, releases devices and leaves. It runs at most once
// per session; later calls find the session already disconnected.
func (m *sessionManager) teardown(ctx context.Context, sess *channelSession) error {
	m.mu.Lock()
	if sess.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	sess.state = StateDisconnected
	sess.refs = 0
	if current, ok := m.sessions[sess.channel]; ok && current == sess {
		delete(m.sessions, sess.channel)
	}
	m.mu.Unlock()

	sess.opMu.Lock()
	defer sess.opMu.Unlock()
	for kind, track := range sess.tracks {
		if err := sess.conn.Unpublish(ctx, track); err != nil {
			m.logger.Warnw("Failed to unpublish track", "channel", sess.channel, "kind", kind, "error", err)
		}
		if err := track.Close(); err != nil {
			m.logger.Warnw("Failed to release capture device", "channel", sess.channel, "kind", kind, "error", err)
		}
		delete(sess.tracks, kind)
	}
	if err := sess.conn.Leave(ctx); err != nil {
		m.logger.Errorw("Failed to leave channel", "channel", sess.channel, "error", err)
		return fmt.Errorf("failed to leave channel %s: %w", sess.channel, err)
	}
	m.logger.Infow("Left channel", "channel", sess.channel, "connectedFor", time.Since(sess.joinedAt).String())
	return nil
}

func (m *sessionManager) State(channel string) ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[channel]; ok {
		return sess.state
	}
	return StateDisconnected
}

func (m *sessionManager) Refs(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[channel]; ok {
		return sess.refs
	}
	return 0
}

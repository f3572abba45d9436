// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var (
	ErrClosed   = errors.New("browser connection closed")
	ErrRejected = errors.New("browser rejected request")
)

const (
	sendBufferSize    = 64
	controlBufferSize = 16
)

type Config struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

func DefaultConfig() Config {
	return Config{
		PingInterval:   20 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 8 << 20,
	}
}

// Bridge is the talk connection to the candidate's browser. The browser
// owns the microphone, camera, speech engines and screen recorder; the
// bridge exposes each of them as the collaborator the interview expects.
type Bridge interface {
	Synthesizer() internal_type.SpeechSynthesizer
	Recognizer() internal_type.SpeechRecognizer
	Capture() internal_type.ScreenCapture
	// Transport relays channel membership and device publishing to the
	// browser. Only one channel can be joined per bridge.
	Transport() internal_type.MediaTransport

	// Negotiate exchanges a WebRTC offer for the browser's answer.
	Negotiate(ctx context.Context, channel, offerSDP string) (string, error)

	// Controls delivers candidate actions: submit_answer, hangup,
	// toggle_track and reshare. Closed when the bridge closes.
	Controls() <-chan Control

	// Notify pushes a message that expects no reply.
	Notify(typ MessageType, data interface{}) error

	// Serve pumps messages until the connection drops or Close is called.
	Serve(ctx context.Context) error
	Close() error
	Done() <-chan struct{}
}

type outbound struct {
	messageType int
	payload     []byte
}

type bridge struct {
	logger commons.Logger
	config Config
	conn   *websocket.Conn

	send     chan outbound
	controls chan Control
	done     chan struct{}

	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan Envelope

	synthesizer *synthesizer
	recognizer  *recognizer
	capture     *screenCapture
	transport   *relayTransport
}

// NewBridge wraps an upgraded websocket. Serve must be called to start
// exchanging messages.
func NewBridge(logger commons.Logger, conn *websocket.Conn, config Config) Bridge {
	b := &bridge{
		logger:   logger,
		config:   config,
		conn:     conn,
		send:     make(chan outbound, sendBufferSize),
		controls: make(chan Control, controlBufferSize),
		done:     make(chan struct{}),
		pending:  make(map[string]chan Envelope),
	}
	b.synthesizer = &synthesizer{bridge: b}
	b.recognizer = &recognizer{bridge: b}
	b.capture = &screenCapture{bridge: b}
	b.transport = &relayTransport{bridge: b}
	return b
}

func (b *bridge) Synthesizer() internal_type.SpeechSynthesizer { return b.synthesizer }
func (b *bridge) Recognizer() internal_type.SpeechRecognizer   { return b.recognizer }
func (b *bridge) Capture() internal_type.ScreenCapture         { return b.capture }
func (b *bridge) Transport() internal_type.MediaTransport      { return b.transport }
func (b *bridge) Controls() <-chan Control                     { return b.controls }
func (b *bridge) Done() <-chan struct{}                        { return b.done }

// =============================================================================
// Lifecycle
// =============================================================================

func (b *bridge) Serve(ctx context.Context) error {
	go b.writePump()
	go func() {
		select {
		case <-ctx.Done():
			_ = b.Close()
		case <-b.done:
		}
	}()

	err := b.readPump()
	_ = b.Close()
	return err
}

func (b *bridge) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.pending {
			close(ch)
			delete(b.pending, id)
		}
		close(b.controls)
		b.mu.Unlock()

		b.capture.bridgeClosed()
		b.transport.bridgeClosed()
		b.logger.Infow("Browser bridge closed")
	})
	return nil
}

func (b *bridge) readPump() error {
	if b.config.MaxMessageSize > 0 {
		b.conn.SetReadLimit(b.config.MaxMessageSize)
	}
	b.extendReadDeadline()
	b.conn.SetPongHandler(func(string) error {
		b.extendReadDeadline()
		return nil
	})

	for {
		messageType, payload, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				b.logger.Warnw("Browser connection dropped", "error", err)
				return fmt.Errorf("failed to read from browser: %w", err)
			}
			return nil
		}
		b.extendReadDeadline()

		switch messageType {
		case websocket.BinaryMessage:
			b.capture.chunk(payload)
		case websocket.TextMessage:
			var env Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				b.logger.Warnw("Dropping malformed browser message", "error", err)
				continue
			}
			b.dispatch(env)
		}
	}
}

func (b *bridge) extendReadDeadline() {
	if b.config.ReadTimeout > 0 {
		_ = b.conn.SetReadDeadline(time.Now().Add(b.config.ReadTimeout))
	}
}

func (b *bridge) writePump() {
	interval := b.config.PingInterval
	if interval <= 0 {
		interval = DefaultConfig().PingInterval
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		_ = b.conn.Close()
	}()

	for {
		select {
		case <-b.done:
			b.flush()
			b.setWriteDeadline()
			_ = b.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-b.send:
			b.setWriteDeadline()
			if err := b.conn.WriteMessage(msg.messageType, msg.payload); err != nil {
				b.logger.Warnw("Failed to write to browser", "error", err)
				_ = b.Close()
				return
			}
		case <-ticker.C:
			b.setWriteDeadline()
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = b.Close()
				return
			}
		}
	}
}

// flush writes what was queued before the bridge closed, so a final
// notification reaches the browser ahead of the close frame.
func (b *bridge) flush() {
	for {
		select {
		case msg := <-b.send:
			b.setWriteDeadline()
			if err := b.conn.WriteMessage(msg.messageType, msg.payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (b *bridge) setWriteDeadline() {
	if b.config.WriteTimeout > 0 {
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
	}
}

// =============================================================================
// Outgoing
// =============================================================================

func (b *bridge) write(ctx context.Context, env Envelope) error {
	env.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", env.Type, err)
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.send <- outbound{messageType: websocket.TextMessage, payload: payload}:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func envelope(typ MessageType, id string, data interface{}) (Envelope, error) {
	env := Envelope{Type: typ, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return env, fmt.Errorf("failed to encode %s payload: %w", typ, err)
		}
		env.Data = raw
	}
	return env, nil
}

func (b *bridge) Notify(typ MessageType, data interface{}) error {
	env, err := envelope(typ, "", data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout())
	defer cancel()
	return b.write(ctx, env)
}

func (b *bridge) writeTimeout() time.Duration {
	if b.config.WriteTimeout > 0 {
		return b.config.WriteTimeout
	}
	return DefaultConfig().WriteTimeout
}

// request sends a message and waits for the browser's reply carrying the
// same id. An error reply is returned as ErrRejected.
func (b *bridge) request(ctx context.Context, typ MessageType, data interface{}) (Envelope, error) {
	id := uuid.NewString()
	env, err := envelope(typ, id, data)
	if err != nil {
		return Envelope{}, err
	}

	reply := make(chan Envelope, 1)
	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return Envelope{}, ErrClosed
	default:
	}
	b.pending[id] = reply
	b.mu.Unlock()
	defer b.forget(id)

	if err := b.write(ctx, env); err != nil {
		return Envelope{}, err
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return Envelope{}, ErrClosed
		}
		if resp.Type == TypeError {
			return resp, fmt.Errorf("%w: %s: %s", ErrRejected, typ, errorMessage(resp))
		}
		return resp, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-b.done:
		return Envelope{}, ErrClosed
	}
}

func (b *bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func errorMessage(env Envelope) string {
	var data ErrorData
	if err := env.decode(&data); err != nil || data.Message == "" {
		return string(env.Type)
	}
	return data.Message
}

// =============================================================================
// Incoming
// =============================================================================

func (b *bridge) dispatch(env Envelope) {
	if env.ID != "" && b.resolve(env) {
		return
	}

	switch env.Type {
	case TypeTranscript:
		var fragment internal_type.TranscriptFragment
		if err := env.decode(&fragment); err != nil {
			b.logger.Warnw("Dropping malformed transcript", "error", err)
			return
		}
		b.recognizer.deliver(fragment)
	case TypeListenEnded:
		b.recognizer.ended()
	case TypeCaptureRevoked:
		b.capture.revoke()
	case TypeParticipant:
		var event internal_type.RemoteParticipantEvent
		if err := env.decode(&event); err != nil {
			b.logger.Warnw("Dropping malformed participant event", "error", err)
			return
		}
		if event.At.IsZero() {
			event.At = time.Now()
		}
		b.transport.emit(event)
	case TypeSubmitAnswer:
		b.pushControl(Control{Type: TypeSubmitAnswer})
	case TypeHangup:
		var data HangupData
		_ = env.decode(&data)
		b.pushControl(Control{Type: TypeHangup, Reason: data.Reason})
	case TypeToggleTrack:
		var data TrackData
		if err := env.decode(&data); err != nil {
			b.logger.Warnw("Dropping malformed toggle_track", "error", err)
			return
		}
		b.pushControl(Control{Type: TypeToggleTrack, Kind: data.Kind, Enabled: data.Enabled})
	case TypeReshare:
		b.pushControl(Control{Type: TypeReshare})
	case TypePing:
		_ = b.Notify(TypePong, nil)
	case TypePong:
	default:
		b.logger.Debugw("Ignoring browser message", "type", env.Type, "id", env.ID)
	}
}

// resolve hands a reply to the request waiting for it.
func (b *bridge) resolve(env Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.pending[env.ID]
	if !ok {
		return false
	}
	delete(b.pending, env.ID)
	ch <- env
	return true
}

func (b *bridge) pushControl(c Control) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.controls <- c:
	default:
		b.logger.Warnw("Control channel full, dropping message", "type", c.Type)
	}
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var (
	ErrEmptyAnswer  = errors.New("answer is empty")
	ErrNotListening = errors.New("no answer is expected right now")
	ErrClosed       = errors.New("turn controller closed")
)

type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeSpeaking  Mode = "speaking"
	ModeListening Mode = "listening"
)

// Submission is one finished candidate turn.
type Submission struct {
	Text   string
	Forced bool // the per-question timer fired
	At     time.Time
}

type Config struct {
	// PostSpeechDelay is the only wait between the end of speech output and
	// the recognizer starting, so trailing audio is not transcribed.
	PostSpeechDelay    time.Duration `mapstructure:"post_speech_delay"`
	// RestartDelay spaces retries after the engine refused to start.
	RestartDelay       time.Duration `mapstructure:"restart_delay"`
	// EngineRestartDelay applies when the engine ended recognition itself.
	EngineRestartDelay time.Duration `mapstructure:"engine_restart_delay"`
	QuestionTimeout    time.Duration `mapstructure:"question_timeout"`
	SpeakTimeout       time.Duration `mapstructure:"speak_timeout"`
}

func DefaultConfig() Config {
	return Config{
		PostSpeechDelay:    300 * time.Millisecond,
		RestartDelay:       500 * time.Millisecond,
		EngineRestartDelay: 100 * time.Millisecond,
		QuestionTimeout:    90 * time.Second,
		SpeakTimeout:       2 * time.Minute,
	}
}

// Controller schedules interviewer speech and candidate listening so the two
// never overlap.
type Controller interface {
	// Speak blocks until the utterance has been played or failed. Engine
	// errors are logged and swallowed. When a turn is expected, listening
	// starts a short moment after the speech ends.
	Speak(ctx context.Context, text string) error

	// ExpectTurn marks that the next speech ends with the candidate's turn.
	ExpectTurn()

	// Listen starts accumulating the candidate's answer. No-op while speaking.
	Listen()

	// SubmitCurrentAnswer hands the buffered answer to Submissions.
	SubmitCurrentAnswer() (string, error)

	// EndTurn stops listening and the question timer without submitting.
	EndTurn()

	Submissions() <-chan Submission
	Transcript() string
	Mode() Mode
	Close()
}

type controller struct {
	logger      commons.Logger
	config      Config
	synthesizer internal_type.SpeechSynthesizer
	normalizer  internal_type.TextNormalizer
	supervisor  *listenSupervisor

	submissions chan Submission

	// speakMu keeps utterances strictly sequential.
	speakMu sync.Mutex

	mu           sync.Mutex
	mode         Mode
	turnExpected bool
	finals       []string
	interim      string
	speechGen    uint64
	timer        *time.Timer
	timerGen     uint64
	closed       bool
}

func NewController(
	logger commons.Logger,
	config Config,
	synthesizer internal_type.SpeechSynthesizer,
	recognizer internal_type.SpeechRecognizer,
	normalizer internal_type.TextNormalizer,
) Controller {
	c := &controller{
		logger:      logger,
		config:      config,
		synthesizer: synthesizer,
		normalizer:  normalizer,
		submissions: make(chan Submission, 4),
		mode:        ModeIdle,
	}
	c.supervisor = newListenSupervisor(logger, recognizer, c.onFragment, config.RestartDelay, config.EngineRestartDelay)
	return c
}

// =============================================================================
// Output
// =============================================================================

func (c *controller) Speak(ctx context.Context, text string) error {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mode = ModeSpeaking
	c.speechGen++
	gen := c.speechGen
	c.stopTimerLocked()
	c.mu.Unlock()

	// Recognition is fully stopped before a single word is played.
	c.supervisor.Suspend()

	spoken := text
	if c.normalizer != nil {
		spoken = c.normalizer.Normalize(ctx, text)
	}

	start := time.Now()
	speakCtx, cancel := context.WithTimeout(ctx, c.config.SpeakTimeout)
	err := c.synthesizer.Speak(speakCtx, spoken)
	timedOut := errors.Is(speakCtx.Err(), context.DeadlineExceeded)
	cancel()
	c.logger.Benchmark("turn.Speak", time.Since(start))
	if err != nil {
		c.logger.Warnw("Speech output failed, continuing", "error", err, "timedOut", timedOut)
	}
	if timedOut {
		if cerr := c.synthesizer.Cancel(); cerr != nil {
			c.logger.Warnw("Failed to cancel speech output", "error", cerr)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.speechGen != gen {
		return nil
	}
	c.mode = ModeIdle
	if c.turnExpected {
		time.AfterFunc(c.config.PostSpeechDelay, func() { c.listenAfterSpeech(gen) })
	}
	return nil
}

func (c *controller) listenAfterSpeech(gen uint64) {
	c.mu.Lock()
	stale := c.closed || c.speechGen != gen || c.mode != ModeIdle
	c.mu.Unlock()
	if stale {
		return
	}
	c.Listen()
}

// =============================================================================
// Input
// =============================================================================

func (c *controller) ExpectTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnExpected = true
	c.finals = nil
	c.interim = ""
}

func (c *controller) Listen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.mode == ModeSpeaking {
		return
	}
	if c.mode == ModeListening {
		return
	}
	c.mode = ModeListening
	c.turnExpected = true
	c.startTimerLocked()
	c.supervisor.Resume(0)
}

func (c *controller) onFragment(fragment internal_type.TranscriptFragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeListening {
		return
	}
	text := strings.TrimSpace(fragment.Text)
	if fragment.Final {
		if text != "" {
			c.finals = append(c.finals, text)
		}
		c.interim = ""
		return
	}
	c.interim = text
}

func (c *controller) transcriptLocked() string {
	parts := make([]string, 0, len(c.finals)+1)
	parts = append(parts, c.finals...)
	if c.interim != "" {
		parts = append(parts, c.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (c *controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

func (c *controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *controller) SubmitCurrentAnswer() (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if !c.turnExpected || c.mode != ModeListening {
		c.mu.Unlock()
		return "", ErrNotListening
	}
	text := c.transcriptLocked()
	if text == "" {
		c.mu.Unlock()
		return "", ErrEmptyAnswer
	}
	c.finishTurnLocked()
	c.pushLocked(Submission{Text: text, At: time.Now()})
	c.mu.Unlock()

	c.supervisor.Suspend()
	return text, nil
}

func (c *controller) forceSubmit(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen || !c.turnExpected {
		c.mu.Unlock()
		return
	}
	text := c.transcriptLocked()
	c.logger.Infow("Question timer expired, submitting buffered answer", "chars", len(text))
	c.finishTurnLocked()
	c.pushLocked(Submission{Text: text, Forced: true, At: time.Now()})
	c.mu.Unlock()

	c.supervisor.Suspend()
}

func (c *controller) EndTurn() {
	c.mu.Lock()
	c.finishTurnLocked()
	c.mu.Unlock()
	c.supervisor.Suspend()
}

func (c *controller) finishTurnLocked() {
	c.turnExpected = false
	c.finals = nil
	c.interim = ""
	c.stopTimerLocked()
	if c.mode == ModeListening {
		c.mode = ModeIdle
	}
}

func (c *controller) pushLocked(s Submission) {
	select {
	case c.submissions <- s:
	default:
		c.logger.Warnw("Submission channel full, dropping message", "forced", s.Forced)
	}
}

func (c *controller) Submissions() <-chan Submission {
	return c.submissions
}

// =============================================================================
// Timer
// =============================================================================

func (c *controller) startTimerLocked() {
	c.stopTimerLocked()
	if c.config.QuestionTimeout <= 0 {
		return
	}
	gen := c.timerGen
	c.timer = time.AfterFunc(c.config.QuestionTimeout, func() { c.forceSubmit(gen) })
}

func (c *controller) stopTimerLocked() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	speaking := c.mode == ModeSpeaking
	c.mode = ModeIdle
	close(c.submissions)
	c.mu.Unlock()

	c.supervisor.Close()
	if speaking {
		if err := c.synthesizer.Cancel(); err != nil {
			c.logger.Warnw("Failed to cancel speech output", "error", err)
		}
	}
}

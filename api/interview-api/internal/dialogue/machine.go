// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var (
	ErrNoQuestions        = errors.New("no questions provided")
	ErrNotInitialized     = errors.New("dialogue not initialized")
	ErrAlreadyInitialized = errors.New("dialogue already initialized")
	ErrSessionEnded       = errors.New("interview already ended")
)

const (
	EndReasonQuestionsExhausted = "questions-exhausted"
	EndReasonTimeExhausted      = "time-exhausted"
)

type Config struct {
	Duration      time.Duration `mapstructure:"duration"`
	SafetyMargin  time.Duration `mapstructure:"safety_margin"`
	OracleTimeout time.Duration `mapstructure:"oracle_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Duration:      15 * time.Minute,
		SafetyMargin:  60 * time.Second,
		OracleTimeout: 20 * time.Second,
	}
}

// Step is the outcome of one candidate turn.
type Step struct {
	NextUtterance  string
	ShouldContinue bool
	QuestionIndex  int
	Classification Classification
	OracleFailed   bool
	EndReason      string
}

// Machine owns the question list, the question pointer and the transcript of
// one interview.
type Machine interface {
	Initialize(questions []internal_type.Question, candidateName, roleTitle string) (string, error)
	Advance(ctx context.Context, answer string) (Step, error)
	Snapshot() internal_type.InterviewSessionState
	SetStatus(status internal_type.SessionStatus)
	Abort()
	Remaining() time.Duration
}

type machine struct {
	logger     commons.Logger
	config     Config
	oracle     internal_type.ResponseOracle
	classifier Classifier
	clock      func() time.Time

	// advanceMu serialises turns; mu guards state and is released while the
	// oracle is thinking so snapshots stay cheap.
	advanceMu sync.Mutex
	mu        sync.RWMutex

	sessionID     string
	candidateName string
	roleTitle     string
	startTime     time.Time
	index         int
	questions     []internal_type.Question
	history       []internal_type.ConversationTurn
	answers       []internal_type.AnsweredQuestion
	status        internal_type.SessionStatus
	initialized   bool
}

type Option func(*machine)

func WithClassifier(c Classifier) Option {
	return func(m *machine) { m.classifier = c }
}

func WithClock(clock func() time.Time) Option {
	return func(m *machine) { m.clock = clock }
}

func NewMachine(logger commons.Logger, sessionID string, config Config, oracle internal_type.ResponseOracle, opts ...Option) Machine {
	m := &machine{
		logger:     logger,
		config:     config,
		oracle:     oracle,
		classifier: NewHeuristicClassifier(),
		clock:      time.Now,
		sessionID:  sessionID,
		status:     internal_type.StatusInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *machine) Initialize(questions []internal_type.Question, candidateName, roleTitle string) (string, error) {
	if len(questions) == 0 {
		return "", ErrNoQuestions
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return "", ErrAlreadyInitialized
	}

	m.questions = append([]internal_type.Question(nil), questions...)
	m.candidateName = candidateName
	m.roleTitle = roleTitle
	m.startTime = m.clock()
	m.index = 0
	m.initialized = true
	m.status = internal_type.StatusAwaitingAnswer

	greeting := greetingLine(candidateName, roleTitle, m.questions)
	m.appendLocked(internal_type.RoleInterviewer, greeting)
	return greeting, nil
}

func (m *machine) Advance(ctx context.Context, answer string) (Step, error) {
	m.advanceMu.Lock()
	defer m.advanceMu.Unlock()

	answer = strings.TrimSpace(answer)

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return Step{}, ErrNotInitialized
	}
	if m.status.IsTerminal() {
		m.mu.Unlock()
		return Step{QuestionIndex: m.index}, ErrSessionEnded
	}

	m.status = internal_type.StatusSubmitting
	spoken := answer
	if spoken == "" {
		spoken = noAnswerText
	}
	m.appendLocked(internal_type.RoleCandidate, spoken)

	class := m.classifier.Classify(answer)
	current := m.questions[m.index]
	timeUp := m.remainingLocked() < m.config.SafetyMargin

	// Time always wins over remaining questions.
	if timeUp {
		if class == ClassAnswer {
			m.recordAnswerLocked(current, answer)
		}
		step := m.finishLocked(timeUpLine, EndReasonTimeExhausted, class)
		answered := len(m.answers)
		m.mu.Unlock()
		m.logger.Infow("Interview time exhausted", "sessionId", m.sessionID, "answered", answered)
		return step, nil
	}

	switch class {
	case ClassRepeat:
		utterance := repeatLine(current)
		m.appendLocked(internal_type.RoleInterviewer, utterance)
		m.setStatusLocked(internal_type.StatusAwaitingAnswer)
		step := Step{NextUtterance: utterance, ShouldContinue: true, QuestionIndex: m.index, Classification: class}
		m.mu.Unlock()
		return step, nil

	case ClassClarification:
		instruction, err := render(clarificationTemplate, pongo2.Context{
			"role":     m.roleTitle,
			"question": current.Text,
			"answer":   answer,
		})
		history := m.historyLocked()
		m.mu.Unlock()

		utterance, failed := m.ask(ctx, history, instruction, err)
		if failed {
			utterance = clarificationFallback(current)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		m.appendLocked(internal_type.RoleInterviewer, utterance)
		m.setStatusLocked(internal_type.StatusAwaitingAnswer)
		return Step{NextUtterance: utterance, ShouldContinue: true, QuestionIndex: m.index, Classification: class, OracleFailed: failed}, nil
	}

	m.recordAnswerLocked(current, answer)
	number, total := m.index, len(m.questions)

	if m.index >= len(m.questions) {
		instruction, err := render(closingTemplate, pongo2.Context{
			"role":   m.roleTitle,
			"name":   m.candidateName,
			"answer": answer,
		})
		history := m.historyLocked()
		m.mu.Unlock()

		utterance, failed := m.ask(ctx, history, instruction, err)
		if failed {
			utterance = closingLine
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		step := m.finishLocked(utterance, EndReasonQuestionsExhausted, class)
		step.OracleFailed = failed
		return step, nil
	}

	next := m.questions[m.index]
	instruction, err := render(nextQuestionTemplate, pongo2.Context{
		"role":   m.roleTitle,
		"number": number,
		"total":  total,
		"answer": answer,
		"next":   next.Text,
	})
	history := m.historyLocked()
	m.mu.Unlock()

	utterance, failed := m.ask(ctx, history, instruction, err)
	if failed {
		utterance = nextQuestionFallback(next)
	} else if !strings.Contains(utterance, next.Text) {
		utterance = strings.TrimSpace(utterance) + " " + next.Text
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(internal_type.RoleInterviewer, utterance)
	m.setStatusLocked(internal_type.StatusAwaitingAnswer)
	return Step{NextUtterance: utterance, ShouldContinue: true, QuestionIndex: m.index, Classification: class, OracleFailed: failed}, nil
}

// ask calls the oracle with a bounded wait. failed is true when the caller
// must use its fixed line instead.
func (m *machine) ask(ctx context.Context, history []internal_type.ConversationTurn, instruction string, renderErr error) (string, bool) {
	if renderErr != nil {
		m.logger.Errorw("Instruction could not be rendered", "sessionId", m.sessionID, "error", renderErr)
		return "", true
	}
	if m.oracle == nil {
		return "", true
	}

	start := time.Now()
	octx, cancel := context.WithTimeout(ctx, m.config.OracleTimeout)
	defer cancel()
	utterance, err := m.oracle.NextUtterance(octx, history, instruction)
	m.logger.Benchmark("dialogue.NextUtterance", time.Since(start))
	if err != nil {
		m.logger.Warnw("Response oracle failed, using fallback line", "sessionId", m.sessionID, "oracle", m.oracle.Name(), "error", err)
		return "", true
	}
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		m.logger.Warnw("Response oracle returned nothing, using fallback line", "sessionId", m.sessionID, "oracle", m.oracle.Name())
		return "", true
	}
	return utterance, false
}

func (m *machine) recordAnswerLocked(q internal_type.Question, answer string) {
	m.answers = append(m.answers, internal_type.AnsweredQuestion{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		AnswerText:   answer,
		Timestamp:    m.clock(),
	})
	if m.index < len(m.questions) {
		m.index++
	}
}

func (m *machine) finishLocked(utterance, reason string, class Classification) Step {
	m.appendLocked(internal_type.RoleInterviewer, utterance)
	m.setStatusLocked(internal_type.StatusCompleted)
	return Step{
		NextUtterance:  utterance,
		ShouldContinue: false,
		QuestionIndex:  m.index,
		Classification: class,
		EndReason:      reason,
	}
}

func (m *machine) appendLocked(role internal_type.Role, text string) {
	m.history = append(m.history, internal_type.ConversationTurn{
		Role:      role,
		Text:      text,
		Timestamp: m.clock(),
	})
}

func (m *machine) historyLocked() []internal_type.ConversationTurn {
	return append([]internal_type.ConversationTurn(nil), m.history...)
}

func (m *machine) remainingLocked() time.Duration {
	if m.startTime.IsZero() {
		return m.config.Duration
	}
	remaining := m.config.Duration - m.clock().Sub(m.startTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (m *machine) Remaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remainingLocked()
}

func (m *machine) Snapshot() internal_type.InterviewSessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return internal_type.InterviewSessionState{
		SessionID:            m.sessionID,
		StartTime:            m.startTime,
		CurrentQuestionIndex: m.index,
		Questions:            append([]internal_type.Question(nil), m.questions...),
		History:              m.historyLocked(),
		Answers:              append([]internal_type.AnsweredQuestion(nil), m.answers...),
		Status:               m.status,
		Remaining:            m.remainingLocked(),
	}
}

// SetStatus records turn-level status. Terminal states are sticky.
func (m *machine) SetStatus(status internal_type.SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(status)
}

func (m *machine) setStatusLocked(status internal_type.SessionStatus) {
	if m.status.IsTerminal() {
		return
	}
	m.status = status
}

func (m *machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.IsTerminal() {
		return
	}
	m.status = internal_type.StatusAborted
}

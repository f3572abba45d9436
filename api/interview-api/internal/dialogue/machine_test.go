// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("dialogue-test"),
		commons.Path(t.TempDir()),
		commons.Level("debug"),
	)
	require.NoError(t, err)
	return logger
}

type scriptedOracle struct {
	mu           sync.Mutex
	calls        int
	failOn       map[int]bool // 1-based call numbers that fail
	reply        func(instruction string) string
	instructions []string
}

func (o *scriptedOracle) Name() string { return "scripted" }

func (o *scriptedOracle) NextUtterance(_ context.Context, history []internal_type.ConversationTurn, instruction string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.instructions = append(o.instructions, instruction)
	if o.failOn[o.calls] {
		return "", errors.New("oracle unavailable")
	}
	if o.reply != nil {
		return o.reply(instruction), nil
	}
	return fmt.Sprintf("Thanks. (turn %d, %d lines of context)", o.calls, len(history)), nil
}

// echoNext replies by quoting the next question from the instruction.
func echoNext(instruction string) string {
	const marker = `exactly as written: "`
	if i := strings.Index(instruction, marker); i >= 0 {
		rest := instruction[i+len(marker):]
		return "Great, thank you. " + strings.TrimSuffix(rest, `"`)
	}
	return "Thank you, that is helpful."
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func questions(n int) []internal_type.Question {
	qs := make([]internal_type.Question, n)
	for i := range qs {
		qs[i] = internal_type.Question{ID: uint64(i + 1), Text: fmt.Sprintf("Question %d?", i+1), Category: "behavioral", Difficulty: "medium"}
	}
	return qs
}

func newTestMachine(t *testing.T, oracle internal_type.ResponseOracle, clock *fakeClock) Machine {
	if clock == nil {
		clock = &fakeClock{now: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)}
	}
	return NewMachine(newTestLogger(t), "session-1", DefaultConfig(), oracle, WithClock(clock.Now))
}

func interviewerTurns(state internal_type.InterviewSessionState) int {
	n := 0
	for _, turn := range state.History {
		if turn.Role == internal_type.RoleInterviewer {
			n++
		}
	}
	return n
}

func TestInitialize(t *testing.T) {
	m := newTestMachine(t, &scriptedOracle{}, nil)

	_, err := m.Initialize(nil, "Ada", "Backend Engineer")
	assert.ErrorIs(t, err, ErrNoQuestions)

	greeting, err := m.Initialize(questions(3), "Ada", "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t,
		"Hello Ada! Welcome to your interview for the Backend Engineer position. I'm your AI interviewer today. I'll be asking you 3 questions about your experience and skills. Let's begin with the first question: Question 1?",
		greeting)

	state := m.Snapshot()
	assert.Equal(t, internal_type.StatusAwaitingAnswer, state.Status)
	assert.Equal(t, 0, state.CurrentQuestionIndex)
	require.Len(t, state.History, 1)
	assert.Equal(t, internal_type.RoleInterviewer, state.History[0].Role)

	_, err = m.Initialize(questions(1), "Ada", "Backend Engineer")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestAdvance_NotInitialized(t *testing.T) {
	m := newTestMachine(t, &scriptedOracle{}, nil)
	_, err := m.Advance(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAdvance_ClarifyScenario(t *testing.T) {
	oracle := &scriptedOracle{reply: echoNext}
	m := newTestMachine(t, oracle, nil)
	_, err := m.Initialize(questions(3), "Ada", "Backend Engineer")
	require.NoError(t, err)
	ctx := context.Background()

	step, err := m.Advance(ctx, "I built a payments API.")
	require.NoError(t, err)
	assert.Equal(t, ClassAnswer, step.Classification)
	assert.Equal(t, 1, step.QuestionIndex)
	assert.True(t, step.ShouldContinue)
	assert.Contains(t, step.NextUtterance, "Question 2?")

	step, err = m.Advance(ctx, "What do you mean by scale?")
	require.NoError(t, err)
	assert.Equal(t, ClassClarification, step.Classification)
	assert.Equal(t, 1, step.QuestionIndex)
	assert.True(t, step.ShouldContinue)

	step, err = m.Advance(ctx, "We served ten thousand requests per second.")
	require.NoError(t, err)
	assert.Equal(t, 2, step.QuestionIndex)
	assert.Contains(t, step.NextUtterance, "Question 3?")

	step, err = m.Advance(ctx, "I mentor two junior engineers.")
	require.NoError(t, err)
	assert.False(t, step.ShouldContinue)
	assert.Equal(t, EndReasonQuestionsExhausted, step.EndReason)
	assert.Equal(t, 3, step.QuestionIndex)

	state := m.Snapshot()
	assert.Equal(t, internal_type.StatusCompleted, state.Status)
	require.Len(t, state.Answers, 3)
	assert.Equal(t, "Question 2?", state.Answers[1].QuestionText)
	assert.Equal(t, "We served ten thousand requests per second.", state.Answers[1].AnswerText)
	assert.GreaterOrEqual(t, interviewerTurns(state), 4)

	_, err = m.Advance(ctx, "one more thing")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestAdvance_OracleFailureFallsBack(t *testing.T) {
	oracle := &scriptedOracle{failOn: map[int]bool{1: true, 2: true}}
	m := newTestMachine(t, oracle, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	step, err := m.Advance(context.Background(), "First answer.")
	require.NoError(t, err)
	assert.True(t, step.OracleFailed)
	assert.Equal(t, 1, step.QuestionIndex)
	assert.Equal(t, "Let me ask you the next question: Question 2?", step.NextUtterance)

	step, err = m.Advance(context.Background(), "Second answer.")
	require.NoError(t, err)
	assert.True(t, step.OracleFailed)
	assert.False(t, step.ShouldContinue)
	assert.Equal(t, "Thank you for your answers. That concludes our interview.", step.NextUtterance)
	assert.Equal(t, internal_type.StatusCompleted, m.Snapshot().Status)
}

func TestAdvance_NilOracleUsesFixedLines(t *testing.T) {
	m := newTestMachine(t, nil, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	step, err := m.Advance(context.Background(), "Answer.")
	require.NoError(t, err)
	assert.Equal(t, "Let me ask you the next question: Question 2?", step.NextUtterance)
}

func TestAdvance_ClarificationFallbackHoldsQuestion(t *testing.T) {
	oracle := &scriptedOracle{failOn: map[int]bool{1: true}}
	m := newTestMachine(t, oracle, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	step, err := m.Advance(context.Background(), "Do you mean production incidents?")
	require.NoError(t, err)
	assert.Equal(t, ClassClarification, step.Classification)
	assert.Equal(t, 0, step.QuestionIndex)
	assert.Equal(t, "The question is asking: Question 1?", step.NextUtterance)
	assert.Empty(t, m.Snapshot().Answers)
}

func TestAdvance_RepeatSkipsOracle(t *testing.T) {
	oracle := &scriptedOracle{}
	m := newTestMachine(t, oracle, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	step, err := m.Advance(context.Background(), "Sorry, can you repeat that?")
	require.NoError(t, err)
	assert.Equal(t, ClassRepeat, step.Classification)
	assert.Equal(t, "Of course. Question 1?", step.NextUtterance)
	assert.Equal(t, 0, step.QuestionIndex)
	assert.Equal(t, 0, oracle.calls)
}

func TestAdvance_AppendsNextQuestionWhenOracleOmitsIt(t *testing.T) {
	oracle := &scriptedOracle{reply: func(string) string { return "Interesting, thank you." }}
	m := newTestMachine(t, oracle, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	step, err := m.Advance(context.Background(), "An answer.")
	require.NoError(t, err)
	assert.Equal(t, "Interesting, thank you. Question 2?", step.NextUtterance)
}

func TestAdvance_TimeExhaustionWins(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)}
	oracle := &scriptedOracle{}
	m := newTestMachine(t, oracle, clock)
	_, err := m.Initialize(questions(5), "Ada", "SRE")
	require.NoError(t, err)

	clock.Advance(14*time.Minute + 30*time.Second)
	assert.Equal(t, 30*time.Second, m.Remaining())

	step, err := m.Advance(context.Background(), "My answer.")
	require.NoError(t, err)
	assert.False(t, step.ShouldContinue)
	assert.Equal(t, EndReasonTimeExhausted, step.EndReason)
	assert.Equal(t, "Thank you for your time today. That concludes our interview. We appreciate you sharing your experiences with us.", step.NextUtterance)
	assert.Equal(t, 0, oracle.calls)

	state := m.Snapshot()
	assert.Equal(t, internal_type.StatusCompleted, state.Status)
	assert.Len(t, state.Answers, 1)
}

func TestAdvance_TimeExhaustedDuringClarification(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)}
	m := newTestMachine(t, &scriptedOracle{}, clock)
	_, err := m.Initialize(questions(3), "Ada", "SRE")
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	step, err := m.Advance(context.Background(), "What do you mean?")
	require.NoError(t, err)
	assert.False(t, step.ShouldContinue)
	assert.Empty(t, m.Snapshot().Answers)
	assert.Equal(t, time.Duration(0), m.Remaining())
}

// A silent candidate whose every turn is forced by the timer still finishes.
func TestAdvance_SilentCandidateTerminates(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d questions", n), func(t *testing.T) {
			m := newTestMachine(t, &scriptedOracle{reply: echoNext}, nil)
			_, err := m.Initialize(questions(n), "Ada", "SRE")
			require.NoError(t, err)

			turns := 0
			for {
				turns++
				require.LessOrEqual(t, turns, n+1, "did not terminate")
				step, err := m.Advance(context.Background(), "")
				require.NoError(t, err)
				if !step.ShouldContinue {
					break
				}
			}
			state := m.Snapshot()
			assert.Equal(t, n, turns)
			assert.Len(t, state.Answers, n)
			assert.Equal(t, "", state.Answers[0].AnswerText)
			assert.Equal(t, noAnswerText, state.History[1].Text)
		})
	}
}

func TestAdvance_PointerMonotonic(t *testing.T) {
	utterances := []string{
		"An answer about databases.",
		"What do you mean?",
		"Sorry, pardon?",
		"",
		"how long should this take",
		"Another answer about teams.",
	}
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 20; run++ {
		m := newTestMachine(t, &scriptedOracle{failOn: map[int]bool{3: true}}, nil)
		_, err := m.Initialize(questions(4), "Ada", "SRE")
		require.NoError(t, err)

		prev := 0
		for i := 0; i < 50; i++ {
			text := utterances[rng.Intn(len(utterances))]
			step, err := m.Advance(context.Background(), text)
			require.NoError(t, err)

			delta := step.QuestionIndex - prev
			assert.GreaterOrEqual(t, delta, 0)
			assert.LessOrEqual(t, delta, 1)
			if step.Classification != ClassAnswer {
				assert.Equal(t, 0, delta, "pointer moved on %q", text)
			}
			prev = step.QuestionIndex
			if !step.ShouldContinue {
				break
			}
		}
		assert.Equal(t, internal_type.StatusCompleted, m.Snapshot().Status)
	}
}

func TestAbortIsSticky(t *testing.T) {
	m := newTestMachine(t, &scriptedOracle{}, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	m.SetStatus(internal_type.StatusSpeaking)
	assert.Equal(t, internal_type.StatusSpeaking, m.Snapshot().Status)

	m.Abort()
	m.SetStatus(internal_type.StatusAwaitingAnswer)
	assert.Equal(t, internal_type.StatusAborted, m.Snapshot().Status)

	_, err = m.Advance(context.Background(), "late answer")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestWithClassifier(t *testing.T) {
	m := NewMachine(newTestLogger(t), "s", DefaultConfig(), nil,
		WithClassifier(ClassifierFunc(func(string) Classification { return ClassAnswer })))
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	step, err := m.Advance(context.Background(), "What?")
	require.NoError(t, err)
	assert.Equal(t, 1, step.QuestionIndex)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newTestMachine(t, nil, nil)
	_, err := m.Initialize(questions(2), "Ada", "SRE")
	require.NoError(t, err)

	state := m.Snapshot()
	state.History[0].Text = "mutated"
	state.Questions[0].Text = "mutated"
	assert.NotEqual(t, "mutated", m.Snapshot().History[0].Text)
	assert.Equal(t, "Question 1?", m.Snapshot().Questions[0].Text)
}

func TestRenderHistory(t *testing.T) {
	out := RenderHistory([]internal_type.ConversationTurn{
		{Role: internal_type.RoleInterviewer, Text: "Hello"},
		{Role: internal_type.RoleCandidate, Text: "Hi"},
	})
	assert.Equal(t, "Interviewer: Hello\nCandidate: Hi\n", out)
}

func TestTemplatesDoNotEscape(t *testing.T) {
	out, err := render(nextQuestionTemplate, pongo2.Context{
		"role":   "R&D Engineer",
		"number": 1,
		"total":  3,
		"answer": `I said "it depends" & meant it`,
		"next":   "What's <your> approach?",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "R&D Engineer")
	assert.Contains(t, out, `"I said "it depends" & meant it"`)
	assert.Contains(t, out, `"What's <your> approach?"`)
	assert.Contains(t, out, "question 1 of 3")
}

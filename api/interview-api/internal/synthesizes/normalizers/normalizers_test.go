// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_normalizers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Mock Logger Implementation
// =============================================================================

type mockLogger struct {
	warnMessages []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{
		warnMessages: make([]string, 0),
	}
}

func (m *mockLogger) Debug(args ...interface{})                      {}
func (m *mockLogger) Debugf(template string, args ...interface{})    {}
func (m *mockLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Info(args ...interface{})                       {}
func (m *mockLogger) Infof(template string, args ...interface{})     {}
func (m *mockLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(args ...interface{})                       {}
func (m *mockLogger) Warnf(template string, args ...interface{}) {
	m.warnMessages = append(m.warnMessages, fmt.Sprintf(template, args...))
}
func (m *mockLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(args ...interface{})                       {}
func (m *mockLogger) Errorf(template string, args ...interface{})     {}
func (m *mockLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Fatalf(template string, args ...interface{})     {}
func (m *mockLogger) Benchmark(functionName string, duration time.Duration) {
}
func (m *mockLogger) Sync() error { return nil }

// =============================================================================
// Number To Word Normalizer Tests
// =============================================================================

func TestNumberToWordNormalizer(t *testing.T) {
	normalizer := NewNumberToWordNormalizer(newMockLogger())

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single digit", "I have 5 apples", "I have five apples"},
		{"teens", "There are 15 students", "There are fifteen students"},
		{"compound number", "We need 42 items", "We need forty-two items"},
		{"zero", "Score is 0", "Score is zero"},
		{"multiple numbers", "Room 5 has 12 chairs and 3 tables", "Room five has twelve chairs and three tables"},
		{"trailing punctuation", "I spent 3.", "I spent three."},
		{"question", "Question 2?", "Question two?"},
		{"glued to letters", "item1 and 2items", "item1 and 2items"},
		{"decimal", "about 2.5 years", "about 2.5 years"},
		{"grouped thousands", "1,000 users", "1,000 users"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizer.Normalize(tt.input))
		})
	}
}

// =============================================================================
// Symbol Normalizer Tests
// =============================================================================

func TestSymbolNormalizer(t *testing.T) {
	normalizer := NewSymbolNormalizer(newMockLogger())

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"percent symbol", "Growth is 25%", "Growth is 25 percent"},
		{"spaced ampersand", "design & testing", "design and testing"},
		{"no symbols", "Plain text here", "Plain text here"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizer.Normalize(tt.input))
		})
	}
}

// =============================================================================
// Abbreviation Normalizer Tests
// =============================================================================

func TestAbbreviationNormalizer(t *testing.T) {
	normalizer := NewAbbreviationNormalizer(newMockLogger())

	assert.Equal(t, "tools, for example Git", normalizer.Normalize("tools, e.g. Git"))
	assert.Equal(t, "the core, that is the kernel", normalizer.Normalize("the core, i.e. the kernel"))
	assert.Equal(t, "five years", normalizer.Normalize("five yrs"))
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestBuildNormalizerPipeline(t *testing.T) {
	logger := newMockLogger()
	p := BuildNormalizerPipeline(logger, []string{"abbreviation", "symbol", "number", "bogus"})

	got := p.Normalize(context.Background(), "You have ~5 yrs of experience & 90% uptime, e.g. at 2 jobs")
	assert.Equal(t, "You have about five years of experience and ninety percent uptime, for example at two jobs", got)
	assert.Len(t, logger.warnMessages, 1, "unknown normalizer should be reported once")
}

func TestNilSafeNormalizers(t *testing.T) {
	logger := newMockLogger()

	normalizers := map[string]Normalizer{
		"number":       NewNumberToWordNormalizer(logger),
		"symbol":       NewSymbolNormalizer(logger),
		"abbreviation": NewAbbreviationNormalizer(logger),
	}

	for name, normalizer := range normalizers {
		t.Run(name+"_empty_string", func(t *testing.T) {
			assert.Equal(t, "", normalizer.Normalize(""))
		})
		t.Run(name+"_whitespace_only", func(t *testing.T) {
			assert.NotPanics(t, func() { normalizer.Normalize("  \n\t") })
		})
	}
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_questions

import (
	"context"
	"errors"
	"strings"
	"time"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

const (
	DefaultQuestionCount     = 10
	DefaultGenerationTimeout = 30 * time.Second
)

var ErrNoQuestionsGenerated = errors.New("question source returned no questions")

var fallbackQuestions = []internal_type.Question{
	{ID: 1, Text: "Tell me about your experience in this field.", Category: "behavioral", Difficulty: "medium"},
	{ID: 2, Text: "What technical skills do you bring to this role?", Category: "technical", Difficulty: "medium"},
	{ID: 3, Text: "Describe a challenging project you've worked on.", Category: "behavioral", Difficulty: "medium"},
	{ID: 4, Text: "How do you stay updated with industry trends?", Category: "behavioral", Difficulty: "easy"},
	{ID: 5, Text: "What is your approach to problem-solving?", Category: "situational", Difficulty: "medium"},
	{ID: 6, Text: "Describe your experience with team collaboration.", Category: "behavioral", Difficulty: "easy"},
	{ID: 7, Text: "How do you handle tight deadlines?", Category: "situational", Difficulty: "medium"},
	{ID: 8, Text: "What are your strengths and weaknesses?", Category: "behavioral", Difficulty: "easy"},
	{ID: 9, Text: "Why are you interested in this position?", Category: "behavioral", Difficulty: "easy"},
	{ID: 10, Text: "Where do you see yourself in 5 years?", Category: "behavioral", Difficulty: "easy"},
}

// JobField maps a free-form job title onto the coarse field the generators
// are trained on.
func JobField(roleTitle string) string {
	title := strings.ToLower(roleTitle)
	switch {
	case containsAny(title, "software", "developer", "programmer"):
		return "software engineer"
	case containsAny(title, "data scientist", "ml engineer"):
		return "data scientist"
	case containsAny(title, "frontend", "front-end"):
		return "frontend developer"
	case containsAny(title, "backend", "back-end"):
		return "backend developer"
	case containsAny(title, "devops", "sre"):
		return "devops engineer"
	case containsAny(title, "machine learning", "ai engineer"):
		return "machine learning engineer"
	case containsAny(title, "full stack", "fullstack"):
		return "full stack developer"
	case containsAny(title, "product manager"):
		return "product manager"
	}
	return "software engineer"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FallbackQuestions returns the built-in list tagged with the role's field.
func FallbackQuestions(roleTitle string, count int) []internal_type.Question {
	field := JobField(roleTitle)
	n := len(fallbackQuestions)
	if count > 0 && count < n {
		n = count
	}
	out := make([]internal_type.Question, n)
	for i := 0; i < n; i++ {
		out[i] = fallbackQuestions[i]
		out[i].JobField = field
	}
	return out
}

type fallbackSource struct {
	logger  commons.Logger
	primary internal_type.QuestionSource
	timeout time.Duration
}

// WithFallback wraps primary so that errors, timeouts and empty results are
// answered with FallbackQuestions. A nil primary always falls back.
func WithFallback(logger commons.Logger, primary internal_type.QuestionSource, timeout time.Duration) internal_type.QuestionSource {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &fallbackSource{logger: logger, primary: primary, timeout: timeout}
}

func (f *fallbackSource) GenerateQuestions(ctx context.Context, roleTitle string, count int) ([]internal_type.Question, error) {
	if count <= 0 {
		count = DefaultQuestionCount
	}
	if f.primary == nil {
		return FallbackQuestions(roleTitle, count), nil
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	questions, err := f.primary.GenerateQuestions(cctx, roleTitle, count)
	f.logger.Benchmark("questions.GenerateQuestions", time.Since(start))
	if err == nil && len(questions) == 0 {
		err = ErrNoQuestionsGenerated
	}
	if err != nil {
		f.logger.Warnw("Question generation failed, using fallback questions", "role", roleTitle, "error", err)
		return FallbackQuestions(roleTitle, count), nil
	}
	return questions, nil
}

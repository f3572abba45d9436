// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"regexp"
	"strings"
)

type Classification string

const (
	ClassAnswer        Classification = "answer"
	ClassClarification Classification = "clarification"
	ClassRepeat        Classification = "repeat"
)

// Classifier decides what a candidate utterance is.
//
// Contract: Classify never fails and is pure. Empty or whitespace-only text
// (a timed-out turn) is always ClassAnswer so the interview moves on.
type Classifier interface {
	Classify(text string) Classification
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) Classification

func (f ClassifierFunc) Classify(text string) Classification {
	return f(text)
}

var (
	interrogativeLead = regexp.MustCompile(`(?i)^\s*(what|how|why|when|where|which|who|can you|could you|should i|do you|does)\b`)
	// Only phrases that ask for the question itself. A bare "again" or
	// "repeat" is common in answers ("I would do it again").
	repeatRequest     = regexp.MustCompile(`(?i)(^\s*(sorry,?\s*)?repeat\b|\b(can you|could you|would you|please) repeat\b|\brepeat (that|the question|it|yourself)\b|\bsay (that|it) again\b|\bcome again\b|\bpardon\b|\bwhat was that\b|\b(didn'?t|did not) (catch|hear) (that|it|the question)\b)`)
)

// maxRepeatWords bounds how long a repeat request can be before it is
// treated as an answer that happens to contain one of the phrases. A repeat
// holds the current question, timer-forced submissions included.
const maxRepeatWords = 10

type heuristicClassifier struct{}

// NewHeuristicClassifier flags a clarification when the text contains a
// question mark or starts with an interrogative word. Short requests to hear
// the question again are ClassRepeat.
//
// A long answer that ends with a question ("about five years, does that
// match?") is a clarification under this rule and holds the question.
func NewHeuristicClassifier() Classifier {
	return heuristicClassifier{}
}

func (heuristicClassifier) Classify(text string) Classification {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ClassAnswer
	}
	if len(strings.Fields(trimmed)) < maxRepeatWords && repeatRequest.MatchString(trimmed) {
		return ClassRepeat
	}
	if strings.Contains(trimmed, "?") || interrogativeLead.MatchString(trimmed) {
		return ClassClarification
	}
	return ClassAnswer
}

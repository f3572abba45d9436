// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicClassifier(t *testing.T) {
	classifier := NewHeuristicClassifier()
	tests := []struct {
		name     string
		input    string
		expected Classification
	}{
		{"plain answer", "I led the migration of our billing system to Go.", ClassAnswer},
		{"empty", "", ClassAnswer},
		{"whitespace", "   ", ClassAnswer},
		{"question mark", "What do you mean by scale?", ClassClarification},
		{"interrogative without mark", "Could you explain what you mean by ownership", ClassClarification},
		{"lead word case insensitive", "how big was the team supposed to be", ClassClarification},
		{"lead word must start", "I know how to do that and did it twice.", ClassAnswer},
		{"long answer ending in question", "I'd say about five years, does that match what you're looking for?", ClassClarification},
		{"repeat request", "Sorry, could you repeat that?", ClassRepeat},
		{"pardon", "Pardon?", ClassRepeat},
		{"say that again", "Can you say that again", ClassRepeat},
		{"again inside a long answer", "We shipped it, then rewrote it again later when traffic grew tenfold that year.", ClassAnswer},
		{"again inside a short answer", "I would do it again", ClassAnswer},
		{"repeat inside a short answer", "I'd repeat the load test weekly.", ClassAnswer},
		{"repeat the question", "Could you repeat the question?", ClassRepeat},
		{"did not catch it", "Sorry, I didn't catch that", ClassRepeat},
		{"bare repeat", "Repeat please.", ClassRepeat},
		{"whatever is not what", "Whatever the team needed, I handled.", ClassAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.input))
		})
	}
}

func TestClassifierFunc(t *testing.T) {
	always := ClassifierFunc(func(string) Classification { return ClassClarification })
	assert.Equal(t, ClassClarification, always.Classify("anything"))
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already valid", "665f1c2e9b_interview-1", "665f1c2e9b_interview-1"},
		{"spaces and dots", "interview 1.2", "interview_1_2"},
		{"unicode", "entrevista-ñ", "entrevista-_"},
		{"slashes", "org/interview", "org_interview"},
		{"truncated", strings.Repeat("a", 80), strings.Repeat("a", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ChannelName(tt.input))
		})
	}
}

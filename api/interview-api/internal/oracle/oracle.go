// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

const (
	GEMINI    = "gemini"
	OPENAI    = "openai"
	ANTHROPIC = "anthropic"
)

var ErrEmptyCompletion = errors.New("model returned no text")

// Config selects and tunes the model behind the interviewer.
type Config struct {
	Provider    string  `mapstructure:"provider" validate:"required,oneof=gemini openai anthropic"`
	APIKey      string  `mapstructure:"api_key" validate:"required"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		switch c.Provider {
		case GEMINI:
			c.Model = "gemini-2.0-flash"
		case OPENAI:
			c.Model = "gpt-4o-mini"
		case ANTHROPIC:
			c.Model = "claude-3-5-haiku-latest"
		}
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	return c
}

// NewResponseOracle builds the oracle for config.Provider.
func NewResponseOracle(ctx context.Context, logger commons.Logger, config Config) (internal_type.ResponseOracle, error) {
	config = config.withDefaults()
	switch config.Provider {
	case GEMINI:
		return NewGeminiOracle(ctx, logger, config)
	case OPENAI:
		return NewOpenAIOracle(logger, config), nil
	case ANTHROPIC:
		return NewAnthropicOracle(logger, config), nil
	default:
		return nil, fmt.Errorf("unsupported oracle provider %q", config.Provider)
	}
}

// =============================================================================
// Conversation shaping shared by every provider
// =============================================================================

// startPrompt opens the conversation when the transcript begins with the
// interviewer; chat models expect the user to speak first.
const startPrompt = "The candidate has joined the interview."

type message struct {
	fromModel bool
	text      string
}

// conversation maps the transcript onto strictly alternating user/model
// messages. The interviewer is the model. Consecutive turns by the same
// speaker are merged and the conversation always ends with a user message.
func conversation(history []internal_type.ConversationTurn) []message {
	out := make([]message, 0, len(history)+2)
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		fromModel := turn.Role == internal_type.RoleInterviewer
		if len(out) == 0 && fromModel {
			out = append(out, message{text: startPrompt})
		}
		if n := len(out); n > 0 && out[n-1].fromModel == fromModel {
			out[n-1].text += "\n" + text
			continue
		}
		out = append(out, message{fromModel: fromModel, text: text})
	}
	if len(out) == 0 || out[len(out)-1].fromModel {
		out = append(out, message{text: "Please respond following the instructions."})
	}
	return out
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropic_option "github.com/anthropics/anthropic-sdk-go/option"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

type anthropicOracle struct {
	logger commons.Logger
	config Config
	client anthropic.Client
}

func NewAnthropicOracle(logger commons.Logger, config Config) internal_type.ResponseOracle {
	config = config.withDefaults()
	opts := []anthropic_option.RequestOption{
		anthropic_option.WithAPIKey(config.APIKey),
		anthropic_option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic_option.WithBaseURL(config.BaseURL))
	}
	return &anthropicOracle{logger: logger, config: config, client: anthropic.NewClient(opts...)}
}

func (a *anthropicOracle) Name() string {
	return ANTHROPIC
}

func (a *anthropicOracle) NextUtterance(ctx context.Context, history []internal_type.ConversationTurn, instruction string) (string, error) {
	a.logger.Debugf("anthropic completion request started, model %s, turns %d", a.config.Model, len(history))

	msgs := conversation(history)
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.fromModel {
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.text)))
		} else {
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.text)))
		}
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.config.Model),
		MaxTokens:   int64(a.config.MaxTokens),
		Temperature: anthropic.Float(a.config.Temperature),
		System:      []anthropic.TextBlockParam{{Text: instruction}},
		Messages:    params,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

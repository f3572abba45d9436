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

	"github.com/openai/openai-go"
	openai_option "github.com/openai/openai-go/option"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

type openaiOracle struct {
	logger commons.Logger
	config Config
	client openai.Client
}

func NewOpenAIOracle(logger commons.Logger, config Config) internal_type.ResponseOracle {
	config = config.withDefaults()
	opts := []openai_option.RequestOption{
		openai_option.WithAPIKey(config.APIKey),
		openai_option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai_option.WithBaseURL(config.BaseURL))
	}
	return &openaiOracle{logger: logger, config: config, client: openai.NewClient(opts...)}
}

func (o *openaiOracle) Name() string {
	return OPENAI
}

func (o *openaiOracle) NextUtterance(ctx context.Context, history []internal_type.ConversationTurn, instruction string) (string, error) {
	o.logger.Debugf("openai completion request started, model %s, turns %d", o.config.Model, len(history))

	msgs := conversation(history)
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	params = append(params, openai.SystemMessage(instruction))
	for _, m := range msgs {
		if m.fromModel {
			params = append(params, openai.AssistantMessage(m.text))
		} else {
			params = append(params, openai.UserMessage(m.text))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.config.Model),
		Messages:            params,
		Temperature:         openai.Float(o.config.Temperature),
		MaxCompletionTokens: openai.Int(int64(o.config.MaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

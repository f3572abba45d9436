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

	"google.golang.org/genai"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

type geminiOracle struct {
	logger commons.Logger
	config Config
	client *genai.Client
}

func NewGeminiOracle(ctx context.Context, logger commons.Logger, config Config) (internal_type.ResponseOracle, error) {
	config = config.withDefaults()
	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiOracle{logger: logger, config: config, client: client}, nil
}

func (g *geminiOracle) Name() string {
	return GEMINI
}

func (g *geminiOracle) NextUtterance(ctx context.Context, history []internal_type.ConversationTurn, instruction string) (string, error) {
	g.logger.Debugf("gemini completion request started, model %s, turns %d", g.config.Model, len(history))

	msgs := conversation(history)
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.fromModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.text, genai.Role(role)))
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Temperature:       genai.Ptr(float32(g.config.Temperature)),
		MaxOutputTokens:   int32(g.config.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

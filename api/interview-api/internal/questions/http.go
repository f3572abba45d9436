// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_questions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

const GenerateMultiplePath = "/generate-multiple"

type generateRequest struct {
	Role         string `json:"role"`
	NumQuestions int    `json:"num_questions"`
}

type generateResponse struct {
	Role      string                   `json:"role"`
	Questions []internal_type.Question `json:"questions"`
	Count     int                      `json:"count"`
	Error     string                   `json:"error,omitempty"`
}

type httpSource struct {
	logger commons.Logger
	client *resty.Client
}

// NewHTTPSource calls the question generation service.
func NewHTTPSource(logger commons.Logger, baseURL string, timeout time.Duration) internal_type.QuestionSource {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &httpSource{logger: logger, client: client}
}

func (h *httpSource) GenerateQuestions(ctx context.Context, roleTitle string, count int) ([]internal_type.Question, error) {
	field := JobField(roleTitle)
	var body generateResponse

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(generateRequest{Role: field, NumQuestions: count}).
		SetResult(&body).
		SetError(&body).
		Post(GenerateMultiplePath)
	if err != nil {
		return nil, fmt.Errorf("failed to call question service: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("question service returned status %d: %s", resp.StatusCode(), body.Error)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("question service error: %s", body.Error)
	}

	questions := dedupe(body.Questions)
	for i := range questions {
		questions[i].JobField = field
	}
	h.logger.Debugw("Generated questions", "role", field, "count", len(questions))
	return questions, nil
}

// dedupe drops blank and repeated questions and renumbers the rest from 1.
func dedupe(in []internal_type.Question) []internal_type.Question {
	seen := make(map[string]struct{}, len(in))
	out := make([]internal_type.Question, 0, len(in))
	for _, q := range in {
		text := strings.Join(strings.Fields(q.Text), " ")
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		q.Text = text
		q.ID = uint64(len(out) + 1)
		if q.Category == "" {
			q.Category = "technical"
		}
		if q.Difficulty == "" {
			q.Difficulty = "medium"
		}
		out = append(out, q)
	}
	return out
}

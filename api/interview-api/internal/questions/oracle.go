// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_questions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var generationTemplate = pongo2.Must(pongo2.FromString(`You prepare spoken interview questions for a {{ field|safe }} candidate applying as {{ title|safe }}.
Write exactly {{ count }} distinct questions that can be answered out loud in under two minutes each.
Mix technical, behavioral and situational questions of easy, medium and hard difficulty.

Respond with a JSON array only, no prose and no code fences. Each element must look like:
{"text": "...", "type": "technical|behavioral|situational", "difficulty": "easy|medium|hard"}`))

type oracleSource struct {
	logger commons.Logger
	oracle internal_type.ResponseOracle
}

// NewOracleSource asks a language model for the question list.
func NewOracleSource(logger commons.Logger, oracle internal_type.ResponseOracle) internal_type.QuestionSource {
	return &oracleSource{logger: logger, oracle: oracle}
}

func (o *oracleSource) GenerateQuestions(ctx context.Context, roleTitle string, count int) ([]internal_type.Question, error) {
	field := JobField(roleTitle)
	instruction, err := generationTemplate.Execute(pongo2.Context{"field": field, "title": roleTitle, "count": count})
	if err != nil {
		return nil, fmt.Errorf("failed to render generation prompt: %w", err)
	}

	reply, err := o.oracle.NextUtterance(ctx, nil, instruction)
	if err != nil {
		return nil, fmt.Errorf("failed to generate questions with %s: %w", o.oracle.Name(), err)
	}

	questions, err := parseQuestionArray(reply)
	if err != nil {
		return nil, err
	}
	questions = dedupe(questions)
	if count > 0 && len(questions) > count {
		questions = questions[:count]
	}
	for i := range questions {
		questions[i].JobField = field
	}
	o.logger.Debugw("Generated questions", "provider", o.oracle.Name(), "role", field, "count", len(questions))
	return questions, nil
}

// parseQuestionArray accepts the model reply with or without a code fence
// and with either objects or bare strings as elements.
func parseQuestionArray(reply string) ([]internal_type.Question, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("model reply has no JSON array")
	}
	raw := []byte(reply[start : end+1])

	var questions []internal_type.Question
	if err := json.Unmarshal(raw, &questions); err == nil {
		return questions, nil
	}
	var texts []string
	if err := json.Unmarshal(raw, &texts); err != nil {
		return nil, fmt.Errorf("failed to decode question array: %w", err)
	}
	questions = make([]internal_type.Question, 0, len(texts))
	for _, t := range texts {
		questions = append(questions, internal_type.Question{Text: t})
	}
	return questions, nil
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
)

var (
	clarificationTemplate = pongo2.Must(pongo2.FromString(`You are a professional interviewer for the {{ role|safe }} position.
The candidate asked for clarification about the current question instead of answering it.
Current question: "{{ question|safe }}"
Candidate said: "{{ answer|safe }}"

Briefly answer the clarification in one or two sentences, then invite the candidate to answer the same question.
Do not move on to another question.`))

	nextQuestionTemplate = pongo2.Must(pongo2.FromString(`You are a professional interviewer for the {{ role|safe }} position.
The candidate answered question {{ number }} of {{ total }}.
Candidate's answer: "{{ answer|safe }}"

Briefly acknowledge the answer in one sentence, without judging it.
Then ask the next question exactly as written: "{{ next|safe }}"`))

	closingTemplate = pongo2.Must(pongo2.FromString(`You are a professional interviewer for the {{ role|safe }} position.
The candidate answered the final question.
Candidate's answer: "{{ answer|safe }}"

Thank {{ name|safe }} for their time in two sentences and close the interview.
Do not ask any further questions.`))
)

func render(tpl *pongo2.Template, ctx pongo2.Context) (string, error) {
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render instruction: %w", err)
	}
	return out, nil
}

// RenderHistory formats the transcript as the oracle reads it.
func RenderHistory(history []internal_type.ConversationTurn) string {
	var b strings.Builder
	for _, turn := range history {
		switch turn.Role {
		case internal_type.RoleCandidate:
			b.WriteString("Candidate: ")
		default:
			b.WriteString("Interviewer: ")
		}
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Fixed lines
// =============================================================================

const (
	closingLine  = "Thank you for your answers. That concludes our interview."
	timeUpLine   = "Thank you for your time today. That concludes our interview. We appreciate you sharing your experiences with us."
	noAnswerText = "(no answer given)"
)

func greetingLine(candidateName, roleTitle string, questions []internal_type.Question) string {
	return fmt.Sprintf(
		"Hello %s! Welcome to your interview for the %s position. I'm your AI interviewer today. I'll be asking you %d questions about your experience and skills. Let's begin with the first question: %s",
		candidateName, roleTitle, len(questions), questions[0].Text,
	)
}

func nextQuestionFallback(q internal_type.Question) string {
	return "Let me ask you the next question: " + q.Text
}

func clarificationFallback(q internal_type.Question) string {
	return "The question is asking: " + q.Text
}

func repeatLine(q internal_type.Question) string {
	return "Of course. " + q.Text
}

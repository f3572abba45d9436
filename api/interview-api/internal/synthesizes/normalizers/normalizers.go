// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_normalizers

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	ntw "moul.io/number-to-words"
)

// Normalizer is a single text rewrite step.
type Normalizer interface {
	Normalize(text string) string
}

// =============================================================================
// Number to word
// =============================================================================

type numberToWordNormalizer struct {
	logger  commons.Logger
	pattern *regexp.Regexp
}

// NewNumberToWordNormalizer spells out standalone integers ("5 years" ->
// "five years"). Digits glued to letters ("item1"), decimals and grouped
// thousands are left alone.
func NewNumberToWordNormalizer(logger commons.Logger) Normalizer {
	return &numberToWordNormalizer{
		logger:  logger,
		pattern: regexp.MustCompile(`\d+`),
	}
}

func (n *numberToWordNormalizer) Normalize(text string) string {
	if text == "" {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range n.pattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if !standaloneBefore(text, start) || !standaloneAfter(text, end) || end-start > 9 {
			continue
		}
		value, err := strconv.Atoi(text[start:end])
		if err != nil {
			n.logger.Debugf("number normalizer: unable to parse %q: %v", text[start:end], err)
			continue
		}
		word := "zero"
		if value != 0 {
			word = ntw.IntegerToEnUs(value)
		}
		b.WriteString(text[last:start])
		b.WriteString(word)
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func standaloneBefore(text string, start int) bool {
	if start == 0 {
		return true
	}
	switch text[start-1] {
	case ' ', '\t', '\n', '(', '"', '\'':
		return true
	}
	return false
}

func standaloneAfter(text string, end int) bool {
	if end == len(text) {
		return true
	}
	switch text[end] {
	case ' ', '\t', '\n', '!', '?', ';', ':', ')', '"', '\'':
		return true
	case '.', ',':
		return end+1 == len(text) || text[end+1] < '0' || text[end+1] > '9'
	}
	return false
}

// =============================================================================
// Symbols
// =============================================================================

type symbolNormalizer struct {
	logger   commons.Logger
	replacer *strings.Replacer
}

func NewSymbolNormalizer(logger commons.Logger) Normalizer {
	return &symbolNormalizer{
		logger: logger,
		replacer: strings.NewReplacer(
			"%", " percent",
			" & ", " and ",
			"&", " and ",
			" + ", " plus ",
			" = ", " equals ",
			"→", " to ",
			"~", "about ",
		),
	}
}

func (n *symbolNormalizer) Normalize(text string) string {
	if text == "" {
		return text
	}
	return n.replacer.Replace(text)
}

// =============================================================================
// Abbreviations
// =============================================================================

type abbreviationNormalizer struct {
	logger   commons.Logger
	patterns []abbreviation
}

type abbreviation struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewAbbreviationNormalizer expands the written shorthand interviewers tend
// to produce (e.g., i.e., etc.) into words.
func NewAbbreviationNormalizer(logger commons.Logger) Normalizer {
	table := []struct{ from, to string }{
		{`\be\.g\.`, "for example"},
		{`\bi\.e\.`, "that is"},
		{`\betc\.`, "et cetera"},
		{`\bvs\.?\s`, "versus "},
		{`\bapprox\.`, "approximately"},
		{`\byrs\b`, "years"},
	}
	patterns := make([]abbreviation, 0, len(table))
	for _, entry := range table {
		patterns = append(patterns, abbreviation{
			pattern:     regexp.MustCompile(`(?i)` + entry.from),
			replacement: entry.to,
		})
	}
	return &abbreviationNormalizer{logger: logger, patterns: patterns}
}

func (n *abbreviationNormalizer) Normalize(text string) string {
	for _, p := range n.patterns {
		text = p.pattern.ReplaceAllString(text, p.replacement)
	}
	return text
}

// =============================================================================
// Pipeline
// =============================================================================

type pipeline struct {
	normalizers []Normalizer
}

// BuildNormalizerPipeline resolves normalizer names in order. Unknown names
// are logged and skipped.
func BuildNormalizerPipeline(logger commons.Logger, names []string) internal_type.TextNormalizer {
	normalizers := make([]Normalizer, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		switch name {
		case "number", "number-to-word":
			normalizers = append(normalizers, NewNumberToWordNormalizer(logger))
		case "symbol":
			normalizers = append(normalizers, NewSymbolNormalizer(logger))
		case "abbreviation", "general":
			normalizers = append(normalizers, NewAbbreviationNormalizer(logger))
		case "":
		default:
			logger.Warnf("normalizer: unknown normalizer '%s', skipping", name)
		}
	}
	return &pipeline{normalizers: normalizers}
}

func (p *pipeline) Normalize(ctx context.Context, text string) string {
	for _, n := range p.normalizers {
		text = n.Normalize(text)
	}
	return strings.Join(strings.Fields(text), " ")
}

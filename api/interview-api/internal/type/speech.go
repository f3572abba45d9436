// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import "context"

// SpeechSynthesizer speaks text and returns once playback finished or failed.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string) error
	// Cancel stops any playback in progress.
	Cancel() error
}

// TranscriptFragment is one recognition result, interim or final.
type TranscriptFragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// RecognitionHandler receives engine callbacks for one recognition run.
type RecognitionHandler interface {
	OnFragment(fragment TranscriptFragment)
	// OnEnd fires when the engine stops without being asked to.
	OnEnd()
}

// SpeechRecognizer is a start/stop speech-to-text engine.
type SpeechRecognizer interface {
	Start(ctx context.Context, handler RecognitionHandler) error
	Stop() error
}

// TextNormalizer rewrites text so a speech engine reads it naturally.
type TextNormalizer interface {
	Normalize(ctx context.Context, text string) string
}

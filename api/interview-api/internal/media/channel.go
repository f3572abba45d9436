// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import "regexp"

// MaxChannelNameLength is the longest channel name the video provider accepts.
const MaxChannelNameLength = 64

var invalidChannelChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ChannelName derives the call channel for an interview. Characters outside
// [a-zA-Z0-9_-] become underscores and the result is cut to 64 bytes.
func ChannelName(interviewID string) string {
	name := invalidChannelChars.ReplaceAllString(interviewID, "_")
	if len(name) > MaxChannelNameLength {
		name = name[:MaxChannelNameLength]
	}
	return name
}

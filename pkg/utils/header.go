// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

const (
	HEADER_AUTH_KEY        = "Authorization"
	HEADER_INTERVIEW_KEY   = "X-Interview-Id"
	HEADER_APPLICATION_KEY = "X-Application-Id"
	QUERY_TALK_TOKEN_KEY   = "token"
	BEARER_TOKEN_PREFIX    = "Bearer "
)

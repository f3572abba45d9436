// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "interview-api", time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("INT-1", "interview_INT-1", "candidate-1")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "INT-1", claims.InterviewID)
	assert.Equal(t, "interview_INT-1", claims.Channel)
	assert.Equal(t, "candidate-1", claims.UID)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	i, err := NewTokenIssuer(testSecret, "interview-api", time.Minute)
	require.NoError(t, err)
	issuer := i.(*tokenIssuer)

	issued := time.Now().Add(-2 * time.Hour)
	issuer.clock = func() time.Time { return issued }
	token, err := issuer.Issue("INT-1", "room", "u")
	require.NoError(t, err)

	issuer.clock = time.Now
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	a, _ := NewTokenIssuer(testSecret, "interview-api", time.Minute)
	b, _ := NewTokenIssuer("ffffffffffffffffffffffffffffffff", "interview-api", time.Minute)

	token, err := a.Issue("INT-1", "room", "u")
	require.NoError(t, err)
	_, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", "interview-api", time.Minute)
	assert.Error(t, err)
}

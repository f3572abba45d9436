// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_media

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid join token")

// JoinClaims authorise one participant on one channel for one interview.
type JoinClaims struct {
	InterviewID string `json:"interview_id"`
	Channel     string `json:"channel"`
	UID         string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies channel join tokens.
type TokenIssuer interface {
	Issue(interviewID, channel, uid string) (string, error)
	Verify(token string) (*JoinClaims, error)
}

type tokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) (TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("join token secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &tokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  time.Now,
	}, nil
}

func (t *tokenIssuer) Issue(interviewID, channel, uid string) (string, error) {
	now := t.clock()
	claims := &JoinClaims{
		InterviewID: interviewID,
		Channel:     channel,
		UID:         uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    t.issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign join token for %s: %w", channel, err)
	}
	return signed, nil
}

func (t *tokenIssuer) Verify(token string) (*JoinClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock),
	)
	claims := &JoinClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Channel == "" || claims.InterviewID == "" {
		return nil, fmt.Errorf("%w: missing channel or interview", ErrInvalidToken)
	}
	return claims, nil
}

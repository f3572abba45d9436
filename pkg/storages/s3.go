// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package storages

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/configs"
)

type s3Storage struct {
	logger   commons.Logger
	bucket   string
	uploader *s3manager.Uploader
}

// NewS3Storage uploads through s3manager so large recordings go multipart.
// A custom Endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Storage(cfg configs.S3Config, logger commons.Logger) (Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage requires a bucket")
	}
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return &s3Storage{
		logger:   logger,
		bucket:   cfg.Bucket,
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *s3Storage) Name() string {
	return S3
}

func (s *s3Storage) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.bucket, err)
	}
	s.logger.Debugw("Stored file in s3", "bucket", s.bucket, "key", key, "location", out.Location)
	return out.Location, nil
}

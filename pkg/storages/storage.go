// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package storages

import (
	"context"
	"fmt"
	"io"

	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/configs"
)

const (
	LOCAL = "local"
	S3    = "s3"
)

// Storage keeps finished files. Put returns where the object can be fetched
// from: a URL path for local storage, the object URL for S3.
type Storage interface {
	Name() string
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// NewStorage picks the backend from StorageType.
func NewStorage(cfg configs.AssetStoreConfig, logger commons.Logger) (Storage, error) {
	switch cfg.StorageType {
	case LOCAL:
		return NewLocalStorage(cfg.LocalPath, logger), nil
	case S3:
		return NewS3Storage(cfg.S3, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}

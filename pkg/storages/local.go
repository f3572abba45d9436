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
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rapidaai/interview/pkg/commons"
)

// DefaultLocalRoot mirrors the public path recordings are served from.
const DefaultLocalRoot = "uploads"

type localStorage struct {
	logger commons.Logger
	root   string
}

func NewLocalStorage(root string, logger commons.Logger) Storage {
	if root == "" {
		root = DefaultLocalRoot
	}
	return &localStorage{logger: logger, root: root}
}

func (s *localStorage) Name() string {
	return LOCAL
}

func (s *localStorage) Put(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	clean := path.Clean("/" + key)
	if strings.Contains(key, "..") || clean == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	target := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer f.Close()

	n, err := io.Copy(f, &contextReader{ctx: ctx, r: body})
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	s.logger.Debugw("Stored file locally", "path", target, "bytes", n)
	return "/" + path.Join(filepath.ToSlash(filepath.Base(s.root)), strings.TrimPrefix(clean, "/")), nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

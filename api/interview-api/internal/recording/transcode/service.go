// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_recording_transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	internal_recording "github.com/rapidaai/interview/api/interview-api/internal/recording"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

var (
	ErrEmptyUpload = errors.New("uploaded recording is empty")
	ErrStoreFailed = errors.New("failed to store recording")
)

const (
	RecordingsPrefix = "recordings"
	mp4ContentType   = "video/mp4"
)

// RawFile is a recording as received from the candidate's browser.
type RawFile struct {
	InterviewID   string
	ApplicationID string
	FileName      string
	ContentType   string
	Body          io.Reader
	ReceivedAt    time.Time
}

// StoredRecordingRef points at the kept copy of a recording.
type StoredRecordingRef struct {
	Key         string `json:"key"`
	Location    string `json:"recordingUrl"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"fileSize"`
	Transcoded  bool   `json:"transcoded"`
}

type Service interface {
	// TranscodeAndStore converts the raw upload to MP4 and stores it. When
	// conversion fails the original bytes are stored unchanged.
	TranscodeAndStore(ctx context.Context, raw RawFile) (StoredRecordingRef, error)
}

type service struct {
	logger     commons.Logger
	storage    internal_type.BlobStorage
	transcoder Transcoder
	workDir    string
	timeout    time.Duration
}

// NewService builds the upload pipeline. A nil transcoder stores raw files.
func NewService(logger commons.Logger, storage internal_type.BlobStorage, transcoder Transcoder, workDir string, timeout time.Duration) Service {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &service{
		logger:     logger,
		storage:    storage,
		transcoder: transcoder,
		workDir:    workDir,
		timeout:    timeout,
	}
}

func (s *service) TranscodeAndStore(ctx context.Context, raw RawFile) (StoredRecordingRef, error) {
	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = time.Now()
	}
	if raw.ContentType == "" {
		raw.ContentType = "video/webm"
	}

	tmp, err := os.MkdirTemp(s.workDir, "recording-*")
	if err != nil {
		return StoredRecordingRef{}, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	ext := path.Ext(raw.FileName)
	if ext == "" {
		ext = ".webm"
	}
	inputPath := filepath.Join(tmp, "input"+ext)
	size, err := writeFile(inputPath, raw.Body)
	if err != nil {
		return StoredRecordingRef{}, err
	}
	if size == 0 {
		return StoredRecordingRef{}, ErrEmptyUpload
	}
	s.logger.Infow("Received recording", "interviewId", raw.InterviewID, "applicationId", raw.ApplicationID, "bytes", size, "contentType", raw.ContentType)

	if s.transcoder != nil {
		outputPath := filepath.Join(tmp, "output.mp4")
		start := time.Now()
		tctx, cancel := context.WithTimeout(ctx, s.timeout)
		terr := s.transcoder.Transcode(tctx, inputPath, outputPath)
		cancel()
		s.logger.Benchmark("transcode.Transcode", time.Since(start))
		if terr == nil {
			ref, err := s.store(ctx, raw, outputPath, "mp4", mp4ContentType)
			if err != nil {
				return StoredRecordingRef{}, err
			}
			ref.Transcoded = true
			return ref, nil
		}
		s.logger.Warnw("Transcoding failed, keeping original recording", "interviewId", raw.InterviewID, "error", terr)
	}

	return s.store(ctx, raw, inputPath, ext[1:], raw.ContentType)
}

func (s *service) store(ctx context.Context, raw RawFile, filePath, ext, contentType string) (StoredRecordingRef, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return StoredRecordingRef{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return StoredRecordingRef{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	key := path.Join(RecordingsPrefix, internal_recording.RecordingFileName(raw.InterviewID, raw.ReceivedAt, ext))
	location, err := s.storage.Put(ctx, key, f, contentType)
	if err != nil {
		return StoredRecordingRef{}, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	s.logger.Infow("Recording stored", "interviewId", raw.InterviewID, "storage", s.storage.Name(), "location", location, "bytes", info.Size())
	return StoredRecordingRef{
		Key:         key,
		Location:    location,
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

func writeFile(target string, body io.Reader) (int64, error) {
	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer f.Close()
	n, err := io.Copy(f, body)
	if err != nil {
		return 0, fmt.Errorf("failed to buffer upload: %w", err)
	}
	return n, nil
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_recording

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/utils"
)

const UploadPath = "/v1/interviews/recordings"

// uploadResponse mirrors the body returned by the recording upload endpoint.
type uploadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		RecordingURL string `json:"recordingUrl"`
		FileSize     int64  `json:"fileSize"`
		Transcoded   bool   `json:"transcoded"`
	} `json:"data"`
}

type httpUploader struct {
	logger commons.Logger
	client *resty.Client
}

// NewHTTPUploader posts recordings as multipart/form-data with the file in
// field "recording" next to "interviewId" and "applicationId".
func NewHTTPUploader(logger commons.Logger, baseURL, authToken string, timeout time.Duration) internal_type.RecordingUploader {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if authToken != "" {
		client.SetAuthToken(authToken)
	}
	return &httpUploader{logger: logger, client: client}
}

func (u *httpUploader) Upload(ctx context.Context, rec internal_type.Recording, meta internal_type.UploadMetadata) (internal_type.UploadResult, error) {
	filename := RecordingFileName(meta.InterviewID, rec.FinishedAt, extensionFor(rec.MimeType))
	var body uploadResponse

	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader(utils.HEADER_INTERVIEW_KEY, meta.InterviewID).
		SetMultipartField("recording", filename, contentTypeOrDefault(rec.MimeType), bytes.NewReader(rec.Data)).
		SetMultipartFormData(map[string]string{
			"interviewId":   meta.InterviewID,
			"applicationId": meta.ApplicationID,
		}).
		SetResult(&body).
		SetError(&body).
		Post(UploadPath)
	if err != nil {
		return internal_type.UploadResult{}, fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	if resp.IsError() || !body.Success {
		return internal_type.UploadResult{}, fmt.Errorf("upload of %s rejected with status %d: %s", filename, resp.StatusCode(), body.Error)
	}

	u.logger.Debugw("Recording upload accepted", "file", filename, "location", body.Data.RecordingURL)
	return internal_type.UploadResult{
		Location:   body.Data.RecordingURL,
		Transcoded: body.Data.Transcoded,
		Size:       body.Data.FileSize,
	}, nil
}

// RecordingFileName is the stored name of a recording: interview-{id}-{unixMillis}.{ext}
func RecordingFileName(interviewID string, at time.Time, ext string) string {
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("interview-%s-%d.%s", interviewID, at.UnixMilli(), ext)
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/mp4"):
		return "mp4"
	case strings.HasPrefix(mimeType, "video/x-matroska"):
		return "mkv"
	default:
		return "webm"
	}
}

func contentTypeOrDefault(mimeType string) string {
	if mimeType == "" {
		return "video/webm"
	}
	return mimeType
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	internal_recording_transcode "github.com/rapidaai/interview/api/interview-api/internal/recording/transcode"
	"github.com/rapidaai/interview/pkg/utils"
)

var ErrUploadUnauthorized = errors.New("upload is not authorized for this interview")

// UploadRecording accepts a finished screen recording as multipart form
// data (file field "recording", plus "interviewId" and "applicationId"),
// converts it to MP4 when possible and attaches it to the interview.
//
// @Router /v1/interviews/recordings [post]
func (api *InterviewApi) UploadRecording(c *gin.Context) {
	start := time.Now()
	if limit := api.cfg.Upload.MaxSizeMB << 20; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	interviewID := c.PostForm("interviewId")
	if utils.IsEmpty(interviewID) {
		interviewID = c.GetHeader(utils.HEADER_INTERVIEW_KEY)
	}
	if utils.IsEmpty(interviewID) {
		failure(c, http.StatusBadRequest, fmt.Errorf("interviewId is required"))
		return
	}
	if !api.authorizeUpload(c, interviewID) {
		api.logger.Warnw("Recording upload rejected", "interviewId", interviewID)
		failure(c, http.StatusUnauthorized, ErrUploadUnauthorized)
		return
	}

	file, header, err := c.Request.FormFile("recording")
	if err != nil {
		failure(c, http.StatusBadRequest, fmt.Errorf("no recording file uploaded: %w", err))
		return
	}
	defer file.Close()

	applicationID := c.PostForm("applicationId")
	if utils.IsEmpty(applicationID) {
		applicationID = c.GetHeader(utils.HEADER_APPLICATION_KEY)
	}

	ref, err := api.deps.Recordings.TranscodeAndStore(c.Request.Context(), internal_recording_transcode.RawFile{
		InterviewID:   interviewID,
		ApplicationID: applicationID,
		FileName:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Body:          file,
		ReceivedAt:    time.Now(),
	})
	if err != nil {
		api.logger.Errorw("Failed to store recording", "interviewId", interviewID, "error", err)
		if errors.Is(err, internal_recording_transcode.ErrEmptyUpload) {
			failure(c, http.StatusBadRequest, err)
			return
		}
		failure(c, http.StatusInternalServerError, err)
		return
	}

	if _, err := api.deps.Results.AttachRecording(c.Request.Context(), interviewID, ref.Location); err != nil {
		api.logger.Warnw("Recording stored but not attached", "interviewId", interviewID, "error", err)
	}
	api.logger.Benchmark("interview_api.UploadRecording", time.Since(start))
	success(c, http.StatusOK, ref)
}

// authorizeUpload accepts the service upload token or the candidate's join
// token for the same interview. Without a configured service token the
// endpoint is open.
func (api *InterviewApi) authorizeUpload(c *gin.Context, interviewID string) bool {
	expected := api.cfg.Upload.AuthToken
	if expected == "" {
		return true
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(c.GetHeader(utils.HEADER_AUTH_KEY), utils.BEARER_TOKEN_PREFIX))
	if bearer == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(bearer), []byte(expected)) == 1 {
		return true
	}
	claims, err := api.deps.Tokens.Verify(bearer)
	return err == nil && claims.InterviewID == interviewID
}

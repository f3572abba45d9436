// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/interview/api/interview-api/config"
	internal_entity "github.com/rapidaai/interview/api/interview-api/internal/entity"
	internal_media "github.com/rapidaai/interview/api/interview-api/internal/media"
	internal_recording_transcode "github.com/rapidaai/interview/api/interview-api/internal/recording/transcode"
	internal_session "github.com/rapidaai/interview/api/interview-api/internal/session"
	internal_store "github.com/rapidaai/interview/api/interview-api/internal/store"
	internal_turn "github.com/rapidaai/interview/api/interview-api/internal/turn"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/utils"
)

const (
	CandidateUID   = "candidate"
	InterviewerUID = "interviewer"
)

// Dependencies are the process-wide collaborators the handlers share. Cloud
// and Uploader may be nil, which disables the matching recording path.
type Dependencies struct {
	Registry   internal_session.Registry
	Media      internal_media.SessionManager
	Interviews internal_store.InterviewStore
	Results    internal_store.ResultStore
	Questions  internal_type.QuestionSource
	Oracle     internal_type.ResponseOracle
	Tokens     internal_media.TokenIssuer
	Cloud      internal_type.CloudRecordingService
	Uploader   internal_type.RecordingUploader
	Recordings internal_recording_transcode.Service
}

type InterviewApi struct {
	cfg    *config.AppConfig
	logger commons.Logger
	deps   Dependencies
}

func NewInterviewApi(cfg *config.AppConfig, logger commons.Logger, deps Dependencies) *InterviewApi {
	return &InterviewApi{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
	}
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func failure(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// =============================================================================
// Interview lifecycle
// =============================================================================

type CreateInterviewRequest struct {
	InterviewID   string `json:"interviewId" binding:"omitempty,max=64"`
	ApplicationID string `json:"applicationId" binding:"max=64"`
	CandidateName string `json:"candidateName" binding:"required,max=200"`
	RoleTitle     string `json:"roleTitle" binding:"required,max=200"`
	QuestionCount int    `json:"questionCount" binding:"omitempty,min=1,max=50"`
}

type CreateInterviewResponse struct {
	Interview *internal_entity.Interview `json:"interview"`
	Channel   string                     `json:"channel"`
	UID       string                     `json:"uid"`
	Token     string                     `json:"token"`
	TalkPath  string                     `json:"talkPath"`
}

// CreateInterview generates the question list for the role and issues the
// candidate's join token.
//
// @Router /v1/interviews [post]
func (api *InterviewApi) CreateInterview(c *gin.Context) {
	start := time.Now()
	var req CreateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, err)
		return
	}
	count := req.QuestionCount
	if count <= 0 {
		count = api.cfg.Questions.Count
	}

	questions, err := api.deps.Questions.GenerateQuestions(c.Request.Context(), req.RoleTitle, count)
	if err != nil {
		api.logger.Errorw("Failed to prepare questions", "role", req.RoleTitle, "error", err)
		failure(c, http.StatusBadGateway, fmt.Errorf("failed to prepare questions: %w", err))
		return
	}

	interview := &internal_entity.Interview{
		InterviewID:   req.InterviewID,
		ApplicationID: req.ApplicationID,
		CandidateName: req.CandidateName,
		RoleTitle:     req.RoleTitle,
		Questions:     questions,
	}
	interviewID, err := api.deps.Interviews.Save(c.Request.Context(), interview)
	if err != nil {
		api.logger.Errorw("Failed to save interview", "interviewId", req.InterviewID, "error", err)
		failure(c, http.StatusConflict, err)
		return
	}

	channel := internal_media.ChannelName(interviewID)
	token, err := api.deps.Tokens.Issue(interviewID, channel, CandidateUID)
	if err != nil {
		failure(c, http.StatusInternalServerError, err)
		return
	}

	api.logger.Benchmark("interview_api.CreateInterview", time.Since(start))
	success(c, http.StatusCreated, CreateInterviewResponse{
		Interview: interview,
		Channel:   channel,
		UID:       CandidateUID,
		Token:     token,
		TalkPath:  fmt.Sprintf("/v1/interviews/%s/talk?%s=%s", interviewID, utils.QUERY_TALK_TOKEN_KEY, token),
	})
}

type InterviewStatusResponse struct {
	Interview *internal_entity.Interview           `json:"interview"`
	Live      bool                                 `json:"live"`
	State     *internal_type.InterviewSessionState `json:"state,omitempty"`
	Results   []*internal_entity.InterviewResult   `json:"results,omitempty"`
}

// GetInterview reports the live dialogue state, or the stored results once
// no session is running.
//
// @Router /v1/interviews/:interviewId [get]
func (api *InterviewApi) GetInterview(c *gin.Context) {
	interviewID := c.Param("interviewId")
	interview, err := api.deps.Interviews.Get(c.Request.Context(), interviewID)
	if err != nil {
		if errors.Is(err, internal_store.ErrInterviewNotFound) {
			failure(c, http.StatusNotFound, err)
			return
		}
		failure(c, http.StatusInternalServerError, err)
		return
	}

	resp := InterviewStatusResponse{Interview: interview}
	if live, err := api.deps.Registry.Get(interviewID); err == nil {
		state := live.Snapshot()
		resp.Live = true
		resp.State = &state
		success(c, http.StatusOK, resp)
		return
	}

	results, err := api.deps.Results.ListByInterview(c.Request.Context(), interviewID)
	if err != nil {
		failure(c, http.StatusInternalServerError, err)
		return
	}
	resp.Results = results
	success(c, http.StatusOK, resp)
}

// SubmitAnswer hands the buffered transcript to the dialogue, the same as
// the candidate pressing submit in the browser.
//
// @Router /v1/interviews/:interviewId/answer [post]
func (api *InterviewApi) SubmitAnswer(c *gin.Context) {
	live, err := api.deps.Registry.Get(c.Param("interviewId"))
	if err != nil {
		failure(c, http.StatusNotFound, err)
		return
	}
	answer, err := live.SubmitAnswer()
	switch {
	case err == nil:
		success(c, http.StatusOK, gin.H{"answer": answer})
	case errors.Is(err, internal_turn.ErrEmptyAnswer):
		failure(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, internal_turn.ErrNotListening),
		errors.Is(err, internal_session.ErrNotRunning),
		errors.Is(err, internal_turn.ErrClosed):
		failure(c, http.StatusConflict, err)
	default:
		failure(c, http.StatusInternalServerError, err)
	}
}

type HangupRequest struct {
	Reason string `json:"reason" binding:"max=64"`
}

// Hangup ends the live interview early.
//
// @Router /v1/interviews/:interviewId/hangup [post]
func (api *InterviewApi) Hangup(c *gin.Context) {
	var req HangupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			failure(c, http.StatusBadRequest, err)
			return
		}
	}
	live, err := api.deps.Registry.Get(c.Param("interviewId"))
	if err != nil {
		failure(c, http.StatusNotFound, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = internal_session.EndReasonHangup
	}
	live.Hangup(reason)
	success(c, http.StatusAccepted, gin.H{"sessionId": live.ID(), "reason": reason})
}

// ListResults returns every stored session result of an interview.
//
// @Router /v1/interviews/:interviewId/results [get]
func (api *InterviewApi) ListResults(c *gin.Context) {
	results, err := api.deps.Results.ListByInterview(c.Request.Context(), c.Param("interviewId"))
	if err != nil {
		failure(c, http.StatusInternalServerError, err)
		return
	}
	success(c, http.StatusOK, results)
}

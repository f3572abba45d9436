// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/interview/api/interview-api/config"
	internal_browser "github.com/rapidaai/interview/api/interview-api/internal/channel/browser"
	internal_dialogue "github.com/rapidaai/interview/api/interview-api/internal/dialogue"
	internal_entity "github.com/rapidaai/interview/api/interview-api/internal/entity"
	internal_media "github.com/rapidaai/interview/api/interview-api/internal/media"
	internal_media_webrtc "github.com/rapidaai/interview/api/interview-api/internal/media/webrtc"
	internal_recording "github.com/rapidaai/interview/api/interview-api/internal/recording"
	internal_session "github.com/rapidaai/interview/api/interview-api/internal/session"
	internal_normalizers "github.com/rapidaai/interview/api/interview-api/internal/synthesizes/normalizers"
	internal_turn "github.com/rapidaai/interview/api/interview-api/internal/turn"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/utils"
)

const statePollInterval = 500 * time.Millisecond

var talkUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Talk runs the interview over the candidate's browser connection. The
// browser hosts the microphone, camera, speech engines and screen recorder;
// the websocket carries commands for them, their replies, and the
// candidate's controls. The handler returns after the browser disconnected
// and the session finalized.
//
// @Router /v1/interviews/:interviewId/talk [get]
func (api *InterviewApi) Talk(c *gin.Context) {
	interviewID := c.Param("interviewId")
	claims, err := api.deps.Tokens.Verify(c.Query(utils.QUERY_TALK_TOKEN_KEY))
	if err != nil || claims.InterviewID != interviewID || claims.UID != CandidateUID {
		api.logger.Warnw("Talk rejected", "interviewId", interviewID, "error", err)
		failure(c, http.StatusUnauthorized, internal_media.ErrInvalidToken)
		return
	}

	ws, err := talkUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	sendErrorAndClose := func(code string, err error) {
		data, _ := json.Marshal(internal_browser.ErrorData{Code: code, Message: err.Error()})
		payload, _ := json.Marshal(internal_browser.Envelope{
			Type:      internal_browser.TypeError,
			Timestamp: time.Now().UnixMilli(),
			Data:      data,
		})
		_ = ws.WriteMessage(websocket.TextMessage, payload)
		_ = ws.Close()
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if owner, ok := api.deps.Registry.ChannelOwner(interviewID); ok && owner != interviewID {
		api.logger.Warnw("Interview channel held by another interview", "interviewId", interviewID, "owner", owner)
		sendErrorAndClose("channel_busy", internal_session.ErrChannelBusy)
		return
	}
	interview, err := api.deps.Interviews.Claim(ctx, interviewID)
	if err != nil {
		api.logger.Warnw("Interview could not be claimed", "interviewId", interviewID, "error", err)
		sendErrorAndClose("not_claimable", err)
		return
	}

	bridge := internal_browser.NewBridge(api.logger, ws, api.cfg.Bridge)
	sess, err := api.newSession(bridge, interview)
	if err != nil {
		api.logger.Errorw("Failed to assemble interview session", "interviewId", interviewID, "error", err)
		api.complete(interviewID, internal_entity.InterviewFailed)
		sendErrorAndClose("session_failed", err)
		return
	}
	if err := api.deps.Registry.Launch(ctx, sess); err != nil {
		api.logger.Errorw("Failed to launch interview session", "interviewId", interviewID, "error", err)
		api.complete(interviewID, internal_entity.InterviewFailed)
		sendErrorAndClose("session_failed", err)
		return
	}
	api.logger.Infow("Interview talk connected", "interviewId", interviewID, "sessionId", sess.ID(), "transport", api.cfg.Media.Transport)

	go api.forwardControls(ctx, bridge, sess)
	utils.Go(ctx, api.logger, func() { api.publishState(bridge, sess) })
	utils.Go(ctx, api.logger, func() {
		select {
		case <-sess.Done():
		case <-bridge.Done():
			return
		}
		ended := internal_browser.EndedData{Reason: internal_session.EndReasonCancelled}
		if result := sess.Result(); result != nil {
			ended = internal_browser.EndedData{Reason: result.EndReason, Status: string(result.Status)}
		}
		_ = bridge.Notify(internal_browser.TypeEnded, ended)
		_ = bridge.Close()
	})

	if err := bridge.Serve(ctx); err != nil {
		api.logger.Debugw("Talk connection closed", "interviewId", interviewID, "error", err)
	}
	sess.Hangup(internal_session.EndReasonParticipantLeft)
	<-sess.Done()

	status := internal_entity.InterviewCompleted
	if result := sess.Result(); result == nil || result.EndReason == internal_session.EndReasonAbortedBefore {
		status = internal_entity.InterviewFailed
	}
	api.complete(interviewID, status)
}

func (api *InterviewApi) complete(interviewID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.deps.Interviews.Complete(ctx, interviewID, status); err != nil {
		api.logger.Errorw("Failed to complete interview", "interviewId", interviewID, "error", err)
	}
}

// newSession assembles the per-connection collaborators around the bridge.
func (api *InterviewApi) newSession(bridge internal_browser.Bridge, interview *internal_entity.Interview) (internal_session.Session, error) {
	sessionID := uuid.NewString()

	transport := bridge.Transport()
	if api.cfg.Media.Transport == config.TransportWebRTC {
		opts := []internal_media_webrtc.Option{internal_media_webrtc.WithICEURLs(api.cfg.Media.ICEServers)}
		if api.cfg.Media.RelayOnly {
			opts = append(opts, internal_media_webrtc.WithRelayOnly())
		}
		rtc, err := internal_media_webrtc.NewTransport(api.logger, bridge, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create webrtc transport: %w", err)
		}
		transport = rtc
	}

	channel := internal_media.ChannelName(interview.InterviewID)
	token, err := api.deps.Tokens.Issue(interview.InterviewID, channel, InterviewerUID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue interviewer token: %w", err)
	}

	sessionConfig := api.cfg.Session
	if api.deps.Cloud == nil {
		sessionConfig.CloudRecording = false
	}

	normalizer := internal_normalizers.BuildNormalizerPipeline(api.logger, api.cfg.Normalizers)
	return internal_session.NewSession(api.logger, sessionConfig, internal_session.Params{
		SessionID:     sessionID,
		InterviewID:   interview.InterviewID,
		ApplicationID: interview.ApplicationID,
		CandidateName: interview.CandidateName,
		RoleTitle:     interview.RoleTitle,
		Questions:     interview.Questions,
		Credentials:   internal_type.Credentials{UID: InterviewerUID, Token: token},
		Transport:     transport,
	}, internal_session.Dependencies{
		Media:     api.deps.Media,
		Recording: internal_recording.NewController(api.logger, api.deps.Cloud, bridge.Capture(), api.deps.Uploader),
		Turn:      internal_turn.NewController(api.logger, api.cfg.Turn, bridge.Synthesizer(), bridge.Recognizer(), normalizer),
		Dialogue:  internal_dialogue.NewMachine(api.logger, sessionID, api.cfg.Dialogue, api.deps.Oracle),
		Sink:      api.deps.Results,
	}), nil
}

// forwardControls applies the candidate's actions until the bridge closes.
func (api *InterviewApi) forwardControls(ctx context.Context, bridge internal_browser.Bridge, sess internal_session.Session) {
	for ctrl := range bridge.Controls() {
		switch ctrl.Type {
		case internal_browser.TypeSubmitAnswer:
			if _, err := sess.SubmitAnswer(); err != nil {
				_ = bridge.Notify(internal_browser.TypeError, internal_browser.ErrorData{Code: "submit_rejected", Message: err.Error()})
			}
		case internal_browser.TypeHangup:
			sess.Hangup(ctrl.Reason)
		case internal_browser.TypeToggleTrack:
			if err := sess.SetTrackEnabled(ctx, ctrl.Kind, ctrl.Enabled); err != nil {
				_ = bridge.Notify(internal_browser.TypeError, internal_browser.ErrorData{Code: "toggle_failed", Message: err.Error()})
			}
		case internal_browser.TypeReshare:
			if err := sess.RestartLocalRecording(ctx); err != nil {
				_ = bridge.Notify(internal_browser.TypeError, internal_browser.ErrorData{Code: "reshare_failed", Message: err.Error()})
			}
		}
	}
}

// publishState pushes the dialogue state whenever the question, status or
// transcript length changes.
func (api *InterviewApi) publishState(bridge internal_browser.Bridge, sess internal_session.Session) {
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	var lastIndex, lastTurns int
	var lastStatus internal_type.SessionStatus
	for {
		select {
		case <-sess.Done():
			return
		case <-bridge.Done():
			return
		case <-ticker.C:
			state := sess.Snapshot()
			if state.CurrentQuestionIndex == lastIndex && state.Status == lastStatus && len(state.History) == lastTurns {
				continue
			}
			lastIndex, lastStatus, lastTurns = state.CurrentQuestionIndex, state.Status, len(state.History)
			if err := bridge.Notify(internal_browser.TypeState, state); err != nil {
				return
			}
		}
	}
}

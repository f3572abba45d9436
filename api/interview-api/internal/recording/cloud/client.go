// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_recording_cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	internal_media "github.com/rapidaai/interview/api/interview-api/internal/media"
	internal_type "github.com/rapidaai/interview/api/interview-api/internal/type"
	"github.com/rapidaai/interview/pkg/commons"
)

const (
	DefaultBaseURL     = "https://api.agora.io"
	RecordingMode      = "composite"
	DefaultMaxIdleTime = 30 // seconds without any publisher before the recorder quits
	ResourceExpiryHour = 24

	streamTypesAudioVideo    = 2
	channelTypeCommunication = 0
	storageVendorS3          = 1
)

// Config is the cloud recording account and where finished files land.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	AppID          string        `mapstructure:"app_id" validate:"required"`
	CustomerID     string        `mapstructure:"customer_id" validate:"required"`
	CustomerSecret string        `mapstructure:"customer_secret" validate:"required"`
	Bucket         string        `mapstructure:"bucket"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	StorageRegion  int           `mapstructure:"storage_region"`
	MaxIdleTime    int           `mapstructure:"max_idle_time"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// TokenSource issues a join token for the recorder bot.
type TokenSource func(channel, uid string) (string, error)

// Client is the provider-side recorder. Start and Stop need only the
// interview id; the rest lives in the HandleStore.
type Client interface {
	internal_type.CloudRecordingService
	Query(ctx context.Context, interviewID string) (*QueryResponse, error)
}

type client struct {
	logger commons.Logger
	config Config
	rest   *resty.Client
	store  HandleStore
	tokens TokenSource
	clock  func() time.Time
}

func NewClient(logger commons.Logger, config Config, store HandleStore, tokens TokenSource) Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = DefaultMaxIdleTime
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	rest := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetBasicAuth(config.CustomerID, config.CustomerSecret).
		SetHeader("Content-Type", "application/json;charset=utf-8")
	return &client{
		logger: logger,
		config: config,
		rest:   rest,
		store:  store,
		tokens: tokens,
		clock:  time.Now,
	}
}

// =============================================================================
// Wire types
// =============================================================================

type acquireRequest struct {
	Cname         string `json:"cname"`
	UID           string `json:"uid"`
	ClientRequest struct {
		ResourceExpiredHour int `json:"resourceExpiredHour"`
		Scene               int `json:"scene"`
	} `json:"clientRequest"`
}

type acquireResponse struct {
	ResourceID string `json:"resourceId"`
}

type recordingConfig struct {
	MaxIdleTime        int      `json:"maxIdleTime"`
	StreamTypes        int      `json:"streamTypes"`
	ChannelType        int      `json:"channelType"`
	VideoStreamType    int      `json:"videoStreamType"`
	SubscribeVideoUids []string `json:"subscribeVideoUids"`
	SubscribeAudioUids []string `json:"subscribeAudioUids"`
	SubscribeUidGroup  int      `json:"subscribeUidGroup"`
}

type storageConfig struct {
	Vendor         int      `json:"vendor"`
	Region         int      `json:"region"`
	Bucket         string   `json:"bucket"`
	AccessKey      string   `json:"accessKey"`
	SecretKey      string   `json:"secretKey"`
	FileNamePrefix []string `json:"fileNamePrefix"`
}

type startRequest struct {
	Cname         string `json:"cname"`
	UID           string `json:"uid"`
	ClientRequest struct {
		Token               string          `json:"token"`
		RecordingConfig     recordingConfig `json:"recordingConfig"`
		RecordingFileConfig struct {
			AvFileType []string `json:"avFileType"`
		} `json:"recordingFileConfig"`
		StorageConfig storageConfig `json:"storageConfig"`
	} `json:"clientRequest"`
}

type startResponse struct {
	ResourceID string `json:"resourceId"`
	SID        string `json:"sid"`
}

type stopRequest struct {
	Cname         string   `json:"cname"`
	UID           string   `json:"uid"`
	ClientRequest struct{} `json:"clientRequest"`
}

// RecordedFile is one output file reported by the provider.
type RecordedFile struct {
	FileName       string `json:"fileName"`
	TrackType      string `json:"trackType"`
	UID            string `json:"uid"`
	MixedAllUser   bool   `json:"mixedAllUser"`
	IsPlayable     bool   `json:"isPlayable"`
	SliceStartTime int64  `json:"sliceStartTime"`
}

type QueryResponse struct {
	ResourceID     string `json:"resourceId"`
	SID            string `json:"sid"`
	ServerResponse struct {
		FileListMode   string         `json:"fileListMode"`
		FileList       []RecordedFile `json:"fileList"`
		Status         int            `json:"status"`
		SliceStartTime int64          `json:"sliceStartTime"`
	} `json:"serverResponse"`
}

type errorResponse struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// =============================================================================
// Operations
// =============================================================================

func (c *client) appPath(suffix string) string {
	return fmt.Sprintf("/v1/apps/%s/cloud_recording%s", c.config.AppID, suffix)
}

func (c *client) Start(ctx context.Context, interviewID string) (internal_type.RecordingHandle, error) {
	channel := internal_media.ChannelName(interviewID)
	if channel == "" {
		return internal_type.RecordingHandle{}, internal_media.ErrInvalidChannel
	}
	recorderUID := fmt.Sprintf("recorder_%d", c.clock().UnixMilli())

	token := ""
	if c.tokens != nil {
		t, err := c.tokens(channel, recorderUID)
		if err != nil {
			return internal_type.RecordingHandle{}, fmt.Errorf("failed to issue recorder token: %w", err)
		}
		token = t
	}

	c.logger.Infow("Acquiring cloud recording resource", "channel", channel, "uid", recorderUID)
	resourceID, err := c.acquire(ctx, channel, recorderUID)
	if err != nil {
		return internal_type.RecordingHandle{}, err
	}

	started, err := c.start(ctx, channel, recorderUID, resourceID, token)
	if err != nil {
		return internal_type.RecordingHandle{}, err
	}

	active := ActiveRecording{
		ResourceID:  resourceID,
		SID:         started.SID,
		Channel:     channel,
		RecorderUID: recorderUID,
		StartedAt:   c.clock(),
	}
	if err := c.store.Save(ctx, interviewID, active); err != nil {
		// Recording runs but cannot be stopped by id; the provider's idle
		// timeout ends it once the channel empties.
		c.logger.Errorw("Cloud recording started but handle was not saved", "interviewId", interviewID, "sid", started.SID, "error", err)
		return internal_type.RecordingHandle{}, err
	}

	c.logger.Infow("Cloud recording started", "interviewId", interviewID, "resourceId", resourceID, "sid", started.SID)
	return internal_type.RecordingHandle{ResourceID: resourceID, SID: started.SID}, nil
}

func (c *client) acquire(ctx context.Context, channel, uid string) (string, error) {
	req := acquireRequest{Cname: channel, UID: uid}
	req.ClientRequest.ResourceExpiredHour = ResourceExpiryHour

	var out acquireResponse
	var failure errorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post(c.appPath("/acquire"))
	if err != nil {
		return "", fmt.Errorf("failed to acquire recording resource: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to acquire recording resource: %s: %s", resp.Status(), failure.Reason)
	}
	if out.ResourceID == "" {
		return "", errors.New("failed to acquire recording resource: empty resourceId")
	}
	return out.ResourceID, nil
}

func (c *client) start(ctx context.Context, channel, uid, resourceID, token string) (*startResponse, error) {
	req := startRequest{Cname: channel, UID: uid}
	req.ClientRequest.Token = token
	req.ClientRequest.RecordingConfig = recordingConfig{
		MaxIdleTime:        c.config.MaxIdleTime,
		StreamTypes:        streamTypesAudioVideo,
		ChannelType:        channelTypeCommunication,
		SubscribeVideoUids: []string{"#allstream#"},
		SubscribeAudioUids: []string{"#allstream#"},
	}
	req.ClientRequest.RecordingFileConfig.AvFileType = []string{"hls", "mp4"}
	req.ClientRequest.StorageConfig = storageConfig{
		Vendor:         storageVendorS3,
		Region:         c.config.StorageRegion,
		Bucket:         c.config.Bucket,
		AccessKey:      c.config.AccessKey,
		SecretKey:      c.config.SecretKey,
		FileNamePrefix: []string{"interviews", channel},
	}

	var out startResponse
	var failure errorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post(c.appPath(fmt.Sprintf("/resourceid/%s/mode/%s/start", resourceID, RecordingMode)))
	if err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to start recording: %s: %s", resp.Status(), failure.Reason)
	}
	if out.SID == "" {
		return nil, errors.New("failed to start recording: empty sid")
	}
	return &out, nil
}

func (c *client) Stop(ctx context.Context, interviewID string) error {
	active, err := c.store.Load(ctx, interviewID)
	if err != nil {
		return err
	}
	// One stop attempt per handle; the provider rejects a second stop anyway.
	defer func() {
		if err := c.store.Delete(ctx, interviewID); err != nil {
			c.logger.Warnw("Failed to clear recording handle", "interviewId", interviewID, "error", err)
		}
	}()

	req := stopRequest{Cname: active.Channel, UID: active.RecorderUID}
	var failure errorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&failure).
		Post(c.appPath(fmt.Sprintf("/resourceid/%s/sid/%s/mode/%s/stop", active.ResourceID, active.SID, RecordingMode)))
	if err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to stop recording: %s: %s", resp.Status(), failure.Reason)
	}
	c.logger.Infow("Cloud recording stopped", "interviewId", interviewID, "sid", active.SID, "duration", c.clock().Sub(active.StartedAt).String())
	return nil
}

func (c *client) Query(ctx context.Context, interviewID string) (*QueryResponse, error) {
	active, err := c.store.Load(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	var out QueryResponse
	var failure errorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&failure).
		Get(c.appPath(fmt.Sprintf("/resourceid/%s/sid/%s/mode/%s/query", active.ResourceID, active.SID, RecordingMode)))
	if err != nil {
		return nil, fmt.Errorf("failed to query recording: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to query recording: %s: %s", resp.Status(), failure.Reason)
	}
	return &out, nil
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/configs"
)

type RedisConnector interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected(ctx context.Context) bool
	GetConnection() *redis.Client
}

type redisConnector struct {
	cfg    configs.RedisConfig
	logger commons.Logger
	client *redis.Client
}

func NewRedisConnector(cfg configs.RedisConfig, logger commons.Logger) RedisConnector {
	return &redisConnector{cfg: cfg, logger: logger}
}

func (r *redisConnector) Name() string {
	return "redis"
}

func (r *redisConnector) Connect(ctx context.Context) error {
	opts := &redis.Options{
		Addr:     r.cfg.Addr(),
		Password: r.cfg.Password,
		DB:       r.cfg.Db,
	}
	if r.cfg.MaxConnection > 0 {
		opts.PoolSize = r.cfg.MaxConnection
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping redis at %s: %w", r.cfg.Addr(), err)
	}
	r.client = client
	r.logger.Infof("connected to redis at %s", r.cfg.Addr())
	return nil
}

func (r *redisConnector) Disconnect(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *redisConnector) IsConnected(ctx context.Context) bool {
	return r.client != nil && r.client.Ping(ctx).Err() == nil
}

func (r *redisConnector) GetConnection() *redis.Client {
	return r.client
}

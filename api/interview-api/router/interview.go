// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interview_routers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	interviewApi "github.com/rapidaai/interview/api/interview-api/api/interview"
	"github.com/rapidaai/interview/api/interview-api/config"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/utils"
)

// NewEngine builds the gin engine with recovery and the CORS policy the
// candidate's browser needs.
func NewEngine(cfg *config.AppConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", utils.HEADER_INTERVIEW_KEY},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	engine.Use(cors.New(corsConfig))
	return engine
}

func InterviewApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, deps interviewApi.Dependencies) {
	logger.Info("Interview api routes added to engine.")
	apiv1 := engine.Group("v1/interviews")
	api := interviewApi.NewInterviewApi(cfg, logger, deps)
	{
		apiv1.POST("", api.CreateInterview)
		apiv1.POST("/recordings", api.UploadRecording)
		apiv1.GET("/:interviewId", api.GetInterview)
		apiv1.GET("/:interviewId/results", api.ListResults)
		apiv1.GET("/:interviewId/talk", api.Talk)
		apiv1.POST("/:interviewId/answer", api.SubmitAnswer)
		apiv1.POST("/:interviewId/hangup", api.Hangup)
	}
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	internal_browser "github.com/rapidaai/interview/api/interview-api/internal/channel/browser"
	internal_dialogue "github.com/rapidaai/interview/api/interview-api/internal/dialogue"
	internal_oracle "github.com/rapidaai/interview/api/interview-api/internal/oracle"
	internal_recording_cloud "github.com/rapidaai/interview/api/interview-api/internal/recording/cloud"
	internal_session "github.com/rapidaai/interview/api/interview-api/internal/session"
	internal_turn "github.com/rapidaai/interview/api/interview-api/internal/turn"
	"github.com/rapidaai/interview/pkg/configs"
	"github.com/rapidaai/interview/pkg/utils"
)

const (
	TransportBrowser = "browser"
	TransportWebRTC  = "webrtc"
)

// Application config structure
type AppConfig struct {
	Name        string `mapstructure:"service_name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment"`
	Host        string `mapstructure:"host" validate:"required"`
	Port        int    `mapstructure:"port" validate:"required"`
	LogLevel    string `mapstructure:"log_level" validate:"required"`
	LogPath     string `mapstructure:"log_path"`

	// Secret signs join tokens handed to candidates.
	Secret         string        `mapstructure:"secret" validate:"required,min=16"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`

	Database   configs.DatabaseConfig   `mapstructure:"database" validate:"required"`
	Redis      configs.RedisConfig      `mapstructure:"redis" validate:"required"`
	AssetStore configs.AssetStoreConfig `mapstructure:"asset_store" validate:"required"`

	Oracle         internal_oracle.Config `mapstructure:"oracle" validate:"required"`
	Questions      QuestionConfig         `mapstructure:"questions"`
	Media          MediaConfig            `mapstructure:"media"`
	CloudRecording CloudRecordingConfig   `mapstructure:"cloud_recording"`
	Upload         UploadConfig           `mapstructure:"upload"`
	Normalizers    []string               `mapstructure:"normalizers"`

	Bridge   internal_browser.Config  `mapstructure:"bridge"`
	Session  internal_session.Config  `mapstructure:"session"`
	Turn     internal_turn.Config     `mapstructure:"turn"`
	Dialogue internal_dialogue.Config `mapstructure:"dialogue"`
}

// QuestionConfig points at the question generator. With no ServiceURL the
// configured oracle writes the questions.
type QuestionConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	Count      int           `mapstructure:"count" validate:"gte=1,lte=50"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MediaConfig struct {
	Transport  string   `mapstructure:"transport" validate:"required,oneof=browser webrtc"`
	ICEServers []string `mapstructure:"ice_servers"`
	RelayOnly  bool     `mapstructure:"relay_only"`
}

type CloudRecordingConfig struct {
	Enabled   bool                            `mapstructure:"enabled"`
	HandleTTL time.Duration                   `mapstructure:"handle_ttl"`
	Provider  internal_recording_cloud.Config `mapstructure:",squash" validate:"-"`
}

// UploadConfig covers both ends of a recording upload: where sessions post
// finished recordings and how this service converts the ones it receives.
type UploadConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AuthToken        string        `mapstructure:"auth_token"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxSizeMB        int64         `mapstructure:"max_size_mb"`
	FFmpegBinary     string        `mapstructure:"ffmpeg_binary"`
	WorkDir          string        `mapstructure:"work_dir"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Reading from env variables.")
	}
	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// every key needs a default so AutomaticEnv can see it during Unmarshal
	v.SetDefault("SERVICE_NAME", "interview-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("ENVIRONMENT", string(utils.DEVELOPMENT))
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", os.TempDir())
	v.SetDefault("SECRET", "")
	v.SetDefault("TOKEN_TTL", time.Hour)
	v.SetDefault("ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DATABASE__DRIVER", "sqlite")
	v.SetDefault("DATABASE__SQLITE__PATH", "interview.db")
	v.SetDefault("DATABASE__POSTGRES__HOST", "localhost")
	v.SetDefault("DATABASE__POSTGRES__PORT", 5432)
	v.SetDefault("DATABASE__POSTGRES__DB_NAME", "<>")
	v.SetDefault("DATABASE__POSTGRES__AUTH__USER", "<>")
	v.SetDefault("DATABASE__POSTGRES__AUTH__PASSWORD", "<>")
	v.SetDefault("DATABASE__POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("DATABASE__POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("DATABASE__POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DB", 0)
	v.SetDefault("REDIS__MAX_CONNECTION", 10)

	v.SetDefault("ASSET_STORE__STORAGE_TYPE", "local")
	v.SetDefault("ASSET_STORE__LOCAL_PATH", "uploads")
	v.SetDefault("ASSET_STORE__S3__REGION", "")
	v.SetDefault("ASSET_STORE__S3__BUCKET", "")
	v.SetDefault("ASSET_STORE__S3__ACCESS_KEY_ID", "")
	v.SetDefault("ASSET_STORE__S3__SECRET_ACCESS_KEY", "")
	v.SetDefault("ASSET_STORE__S3__ENDPOINT", "")

	v.SetDefault("ORACLE__PROVIDER", internal_oracle.GEMINI)
	v.SetDefault("ORACLE__API_KEY", "")
	v.SetDefault("ORACLE__MODEL", "")
	v.SetDefault("ORACLE__BASE_URL", "")
	v.SetDefault("ORACLE__TEMPERATURE", 0.7)
	v.SetDefault("ORACLE__MAX_TOKENS", 512)
	v.SetDefault("ORACLE__MAX_RETRIES", 2)

	v.SetDefault("QUESTIONS__SERVICE_URL", "")
	v.SetDefault("QUESTIONS__COUNT", 10)
	v.SetDefault("QUESTIONS__TIMEOUT", 30*time.Second)

	v.SetDefault("MEDIA__TRANSPORT", TransportBrowser)
	v.SetDefault("MEDIA__ICE_SERVERS", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("MEDIA__RELAY_ONLY", false)

	v.SetDefault("CLOUD_RECORDING__ENABLED", false)
	v.SetDefault("CLOUD_RECORDING__HANDLE_TTL", 24*time.Hour)
	v.SetDefault("CLOUD_RECORDING__BASE_URL", internal_recording_cloud.DefaultBaseURL)
	v.SetDefault("CLOUD_RECORDING__APP_ID", "")
	v.SetDefault("CLOUD_RECORDING__CUSTOMER_ID", "")
	v.SetDefault("CLOUD_RECORDING__CUSTOMER_SECRET", "")
	v.SetDefault("CLOUD_RECORDING__BUCKET", "")
	v.SetDefault("CLOUD_RECORDING__ACCESS_KEY", "")
	v.SetDefault("CLOUD_RECORDING__SECRET_KEY", "")
	v.SetDefault("CLOUD_RECORDING__STORAGE_REGION", 0)
	v.SetDefault("CLOUD_RECORDING__MAX_IDLE_TIME", internal_recording_cloud.DefaultMaxIdleTime)
	v.SetDefault("CLOUD_RECORDING__TIMEOUT", 15*time.Second)

	v.SetDefault("UPLOAD__BASE_URL", "http://localhost:9090")
	v.SetDefault("UPLOAD__AUTH_TOKEN", "")
	v.SetDefault("UPLOAD__TIMEOUT", 2*time.Minute)
	v.SetDefault("UPLOAD__MAX_SIZE_MB", 500)
	v.SetDefault("UPLOAD__FFMPEG_BINARY", "ffmpeg")
	v.SetDefault("UPLOAD__WORK_DIR", os.TempDir())
	v.SetDefault("UPLOAD__TRANSCODE_TIMEOUT", 10*time.Minute)

	v.SetDefault("NORMALIZERS", []string{"number-to-word", "symbol", "abbreviation"})

	bridge := internal_browser.DefaultConfig()
	v.SetDefault("BRIDGE__PING_INTERVAL", bridge.PingInterval)
	v.SetDefault("BRIDGE__READ_TIMEOUT", bridge.ReadTimeout)
	v.SetDefault("BRIDGE__WRITE_TIMEOUT", bridge.WriteTimeout)
	v.SetDefault("BRIDGE__MAX_MESSAGE_SIZE", bridge.MaxMessageSize)

	session := internal_session.DefaultConfig()
	v.SetDefault("SESSION__LOCAL_RECORDING_DELAY", session.LocalRecordingDelay)
	v.SetDefault("SESSION__CLOUD_RECORDING", session.CloudRecording)
	v.SetDefault("SESSION__LOCAL_RECORDING", session.LocalRecording)
	v.SetDefault("SESSION__LOCAL_SOURCES__SCREEN", session.LocalSources.Screen)
	v.SetDefault("SESSION__LOCAL_SOURCES__SYSTEM_AUDIO", session.LocalSources.SystemAudio)
	v.SetDefault("SESSION__LOCAL_SOURCES__MICROPHONE_AUDIO", session.LocalSources.MicrophoneAudio)
	v.SetDefault("SESSION__LOCAL_SOURCES__TIMESLICE", session.LocalSources.Timeslice)
	v.SetDefault("SESSION__TRACKS__AUDIO", session.Tracks.Audio)
	v.SetDefault("SESSION__TRACKS__VIDEO", session.Tracks.Video)
	v.SetDefault("SESSION__FINALIZE_TIMEOUT", session.FinalizeTimeout)
	v.SetDefault("SESSION__PERSIST_TIMEOUT", session.PersistTimeout)

	turn := internal_turn.DefaultConfig()
	v.SetDefault("TURN__POST_SPEECH_DELAY", turn.PostSpeechDelay)
	v.SetDefault("TURN__RESTART_DELAY", turn.RestartDelay)
	v.SetDefault("TURN__ENGINE_RESTART_DELAY", turn.EngineRestartDelay)
	v.SetDefault("TURN__QUESTION_TIMEOUT", turn.QuestionTimeout)
	v.SetDefault("TURN__SPEAK_TIMEOUT", turn.SpeakTimeout)

	dialogue := internal_dialogue.DefaultConfig()
	v.SetDefault("DIALOGUE__DURATION", dialogue.Duration)
	v.SetDefault("DIALOGUE__SAFETY_MARGIN", dialogue.SafetyMargin)
	v.SetDefault("DIALOGUE__ORACLE_TIMEOUT", dialogue.OracleTimeout)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// valdating the app config
	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		log.Printf("%+v\n", err)
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.CloudRecording.Enabled {
		if err := validate.Struct(&config.CloudRecording.Provider); err != nil {
			return nil, fmt.Errorf("invalid cloud recording config: %w", err)
		}
	}
	return &config, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *AppConfig) IsProduction() bool {
	return utils.FromEnvironmentStr(c.Environment).IsProduction()
}

// Addr is the listen address of the HTTP server.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

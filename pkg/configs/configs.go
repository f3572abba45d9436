// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package configs

import "fmt"

type PostgresAuth struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
}

type PostgresConfig struct {
	Host               string       `mapstructure:"host" validate:"required"`
	Port               int          `mapstructure:"port" validate:"required"`
	DBName             string       `mapstructure:"db_name" validate:"required"`
	Auth               PostgresAuth `mapstructure:"auth" validate:"required"`
	MaxOpenConnection  int          `mapstructure:"max_open_connection"`
	MaxIdealConnection int          `mapstructure:"max_ideal_connection"`
	SslMode            string       `mapstructure:"ssl_mode"`
}

// DSN renders the libpq keyword/value connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Auth.User, c.Auth.Password, c.DBName, c.SslMode)
}

// URL renders the postgres:// form expected by the migration runner.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Auth.User, c.Auth.Password, c.Host, c.Port, c.DBName, c.SslMode)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig selects the gorm dialect. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Host          string `mapstructure:"host" validate:"required"`
	Port          int    `mapstructure:"port" validate:"required"`
	Password      string `mapstructure:"password"`
	Db            int    `mapstructure:"db"`
	MaxConnection int    `mapstructure:"max_connection"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

// AssetStoreConfig decides where finished recordings land. StorageType is
// "local" or "s3".
type AssetStoreConfig struct {
	StorageType string   `mapstructure:"storage_type" validate:"required,oneof=local s3"`
	LocalPath   string   `mapstructure:"local_path"`
	S3          S3Config `mapstructure:"s3"`
}

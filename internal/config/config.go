// Package config loads settings for the rest and storage services from an
// optional config file and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"

	AuthBasic = "basic"
	AuthJWT   = "jwt"
)

type Rest struct {
	Port       string
	DBDriver   string
	DBFile     string
	BlobDir    string
	StorageURL string
	AuthMode   string
	JWTSecret  string
	LogLevel   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string
}

type Storage struct {
	Port     string
	Dir      string
	LogLevel string
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	if f := v.GetString("CONFIG_FILE"); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("can't read config file %s: %w", f, err)
		}
	}
	return v, nil
}

func LoadRest() (*Rest, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	v.SetDefault("REST_PORT", "8080")
	v.SetDefault("DB_DRIVER", DriverSqlite)
	v.SetDefault("DB_FILE", "rest-service.db")
	v.SetDefault("BLOB_DIR", "uploads")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_TOPIC", "resource.events")

	c := &Rest{
		Port:          v.GetString("REST_PORT"),
		DBDriver:      strings.ToLower(v.GetString("DB_DRIVER")),
		DBFile:        v.GetString("DB_FILE"),
		BlobDir:       v.GetString("BLOB_DIR"),
		StorageURL:    v.GetString("STORAGE_URL"),
		AuthMode:      strings.ToLower(v.GetString("AUTH_MODE")),
		JWTSecret:     v.GetString("JWT_SECRET"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		KafkaBrokers:  splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:    v.GetString("KAFKA_TOPIC"),
	}
	if c.AuthMode == "" {
		c.AuthMode = defaultAuthMode(c.JWTSecret)
	}
	return c, c.validate()
}

// defaultAuthMode prefers signed tokens once a secret is configured. Basic
// mode trusts the username and is meant for local use.
func defaultAuthMode(secret string) string {
	if secret != "" {
		return AuthJWT
	}
	return AuthBasic
}

func (c *Rest) validate() error {
	switch c.DBDriver {
	case DriverSqlite, DriverPostgres:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.AuthMode {
	case AuthBasic:
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required with AUTH_MODE=%s", AuthJWT)
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	return nil
}

func LoadStorage() (*Storage, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	v.SetDefault("STORAGE_PORT", "8080")
	v.SetDefault("STORAGE_DIR", ".")
	v.SetDefault("LOG_LEVEL", "info")
	return &Storage{
		Port:     v.GetString("STORAGE_PORT"),
		Dir:      v.GetString("STORAGE_DIR"),
		LogLevel: v.GetString("LOG_LEVEL"),
	}, nil
}

func splitList(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

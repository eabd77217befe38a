package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/go-lightwave/linkplus/lightwave"
)

// envPrefix is prepended to every environment variable, e.g. LINKPLUS_BEARER_ID.
const envPrefix = "LINKPLUS"

// Config holds the CLI settings. Priority: flag > env (.env included) > default.
type Config struct {
	BearerID     string `envconfig:"BEARER_ID" validate:"required"`
	RefreshToken string `envconfig:"REFRESH_TOKEN"`
	TokenFile    string `envconfig:"TOKEN_FILE"`
	APIURL       string `envconfig:"API_URL" default:"https://publicapi.lightwaverf.com/v1/" validate:"required,url"`
	AuthURL      string `envconfig:"AUTH_URL" default:"https://auth.lightwaverf.com/" validate:"required,url"`
	RedisAddr    string `envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisKey     string `envconfig:"REDIS_KEY" default:"linkplus:auth_response"`
	RetryMax     int    `envconfig:"RETRY_MAX" default:"3" validate:"gte=0,lte=10"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"warn" validate:"oneof=debug info warn error"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	LogFile      string `envconfig:"LOG_FILE"`
}

// cliFlags are the global flags; empty values fall back to the environment.
type cliFlags struct {
	bearerID     string
	refreshToken string
	tokenFile    string
	apiURL       string
	authURL      string
	redisAddr    string
	logFile      string
}

// loadConfig reads .env and the environment, applies flag overrides and validates
// the result. needCredentials is false for commands that never call the API.
func loadConfig(flags cliFlags, needCredentials bool) (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config from environment: %w", err)
	}

	cfg.BearerID = override(flags.bearerID, cfg.BearerID)
	cfg.RefreshToken = override(flags.refreshToken, cfg.RefreshToken)
	cfg.TokenFile = override(flags.tokenFile, cfg.TokenFile)
	cfg.APIURL = override(flags.apiURL, cfg.APIURL)
	cfg.AuthURL = override(flags.authURL, cfg.AuthURL)
	cfg.RedisAddr = override(flags.redisAddr, cfg.RedisAddr)
	cfg.LogFile = override(flags.logFile, cfg.LogFile)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if cfg.TokenFile == "" && cfg.RedisAddr == "" {
		path, err := lightwave.DefaultSnapshotPath()
		if err != nil {
			return nil, err
		}
		cfg.TokenFile = path
	}

	if err := cfg.validate(needCredentials); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func override(flagValue, current string) string {
	if flagValue != "" {
		return flagValue
	}
	return current
}

func (c *Config) validate(needCredentials bool) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return envPrefix + "_" + f.Tag.Get("envconfig")
	})

	var err error
	if needCredentials {
		err = v.Struct(c)
	} else {
		err = v.StructExcept(c, "BearerID")
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		msgs := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			msgs = append(msgs, fe.Field()+": "+msgForTag(fe.Tag(), fe.Param()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	if err != nil {
		return err
	}

	if err := lightwave.ValidateServerURL(c.APIURL); err != nil {
		return fmt.Errorf("invalid %s_API_URL: %w", envPrefix, err)
	}
	if err := lightwave.ValidateServerURL(c.AuthURL); err != nil {
		return fmt.Errorf("invalid %s_AUTH_URL: %w", envPrefix, err)
	}
	return nil
}

func msgForTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of " + param
	case "gte":
		return "must be at least " + param
	case "lte":
		return "must not exceed " + param
	default:
		return "failed validation on rule: " + tag
	}
}

// insecureURLs returns the configured server URLs that use plain HTTP.
func insecureURLs(cfg *Config) []string {
	var out []string
	for _, u := range []string{cfg.APIURL, cfg.AuthURL} {
		if strings.HasPrefix(strings.ToLower(u), "http://") {
			out = append(out, u)
		}
	}
	return out
}

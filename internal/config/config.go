package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const envPrefix = "SPLITDL_"

// Config holds defaults read from the environment. Flags set on the
// command line take precedence.
type Config struct {
	Proxy       string
	UserAgent   string
	BearerToken string
	Connections int
	Workers     int
	TempDir     string
	RateLimit   int64
	Profile     string
	S3Endpoint  string
}

// Load reads the environment after merging in the given .env files, or
// ./.env when none are given. Variables already set are not overridden.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading .env: %v", err)
			}
			log.Debug().Str("op", "config/config").Msg(".env file not found, using environment variables only")
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("error reading env file: %v", err)
	}

	cfg := &Config{
		Proxy:       getEnv("PROXY", ""),
		UserAgent:   getEnv("USER_AGENT", ""),
		BearerToken: getEnv("BEARER_TOKEN", ""),
		TempDir:     getEnv("TEMP_DIR", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		Profile:     os.Getenv("AWS_PROFILE"),
	}
	var err error
	if cfg.Connections, err = getInt("CONNECTIONS"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("WORKERS"); err != nil {
		return nil, err
	}
	if limit := getEnv("RATE_LIMIT", ""); limit != "" {
		bytes, err := humanize.ParseBytes(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid %sRATE_LIMIT %q: %v", envPrefix, limit, err)
		}
		cfg.RateLimit = int64(bytes)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s%s %q", envPrefix, key, value)
	}
	return n, nil
}

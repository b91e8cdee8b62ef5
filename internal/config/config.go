package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// APIURL is the NPM admin API base URL, e.g. http://localhost:81.
	APIURL        string
	ContainerName string
	Username      string
	Password      string
	// APIURLConfigured is true when NPM_API_URL was set explicitly;
	// discovery never overrides an explicit URL.
	APIURLConfigured bool
	// UseDockerDiscovery enables resolving the API URL from a running
	// NPM container when no explicit URL is configured.
	UseDockerDiscovery bool
	LogLevel           string
	RequestTimeout     time.Duration
}

func Load() (*Config, error) {
	// A .env file in the working directory is optional.
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:             getEnv("NPM_API_URL", "http://localhost:81"),
		APIURLConfigured:   os.Getenv("NPM_API_URL") != "",
		ContainerName:      getEnv("NPM_CONTAINER_NAME", "nginx-proxy-manager"),
		Username:           getEnv("NPM_USERNAME", ""),
		Password:           getEnv("NPM_PASSWORD", ""),
		UseDockerDiscovery: getEnvBool("NPM_USE_DOCKER_DISCOVERY", true),
		LogLevel:           getEnv("NPM_LOG_LEVEL", "info"),
	}

	timeoutSecs, err := strconv.Atoi(getEnv("NPM_TIMEOUT", "30"))
	if err != nil || timeoutSecs <= 0 {
		return nil, fmt.Errorf("invalid NPM_TIMEOUT: %q", os.Getenv("NPM_TIMEOUT"))
	}
	cfg.RequestTimeout = time.Duration(timeoutSecs) * time.Second

	u, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse NPM_API_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("NPM_API_URL must be http or https, got %q", cfg.APIURL)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

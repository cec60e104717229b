package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type ConfigStruct struct {
	Server    ServerConfig
	Youtube   YoutubeConfig
	Stream    StreamConfig
	Mirrors   MirrorConfig
	RateLimit RateLimitConfig
	Sentry    SentryConfig
	Options   Options
}

type ServerConfig struct {
	Port           string
	DeploymentMode string
	PublicBaseURL  string
}

type YoutubeConfig struct {
	APIKey string
}

type StreamConfig struct {
	MaxAttempts  int
	ImageTimeout time.Duration
}

type MirrorConfig struct {
	Piped     []string
	Invidious []string
	Timeout   time.Duration
}

type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

type SentryConfig struct {
	DSN     string
	Release string
}

type Options struct {
	FlacEnabled bool
	LogLevel    string
}

const (
	ModeServer     = "server"
	ModeServerless = "serverless"
)

var defaultPipedInstances = []string{
	"https://pipedapi.kavin.rocks",
	"https://pipedapi.adminforge.de",
	"https://api.piped.private.coffee",
	"https://pipedapi.r4fo.com",
}

var defaultInvidiousInstances = []string{
	"https://inv.nadeko.net",
	"https://invidious.nerdvpn.de",
	"https://yewtu.be",
	"https://invidious.privacyredirect.com",
}

func (s *ServerConfig) IsServerless() bool {
	return s.DeploymentMode == ModeServerless
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Server: ServerConfig{
			Port:           getPort(),
			DeploymentMode: getDeploymentMode(),
			PublicBaseURL:  strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		},
		Youtube: YoutubeConfig{
			APIKey: os.Getenv("YOUTUBE_API_KEY"),
		},
		Stream: StreamConfig{
			MaxAttempts:  getMaxAttempts(),
			ImageTimeout: getSeconds("IMAGE_TIMEOUT_SECONDS", 10),
		},
		Mirrors: MirrorConfig{
			Piped:     getInstances("PIPED_INSTANCES", defaultPipedInstances),
			Invidious: getInstances("INVIDIOUS_INSTANCES", defaultInvidiousInstances),
			Timeout:   getSeconds("MIRROR_TIMEOUT_SECONDS", 15),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getRateLimitMax(),
			Window:      getSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Sentry: SentryConfig{
			DSN:     os.Getenv("SENTRY_DSN"),
			Release: os.Getenv("RELEASE"),
		},
		Options: Options{
			FlacEnabled: os.Getenv("FLAC_ENABLED") == "true",
			LogLevel:    os.Getenv("LOG_LEVEL"),
		},
	}

	Config = config
}

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		return "8080"
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "8080"
	}
	return port
}

func getDeploymentMode() string {
	if os.Getenv("VERCEL") == "1" {
		return ModeServerless
	}
	switch strings.ToLower(os.Getenv("DEPLOYMENT_MODE")) {
	case ModeServerless:
		return ModeServerless
	default:
		return ModeServer
	}
}

func getMaxAttempts() int {
	attemptsStr := os.Getenv("STREAM_MAX_ATTEMPTS")
	if attemptsStr == "" {
		return 5
	}
	attempts, err := strconv.Atoi(attemptsStr)
	if err != nil || attempts <= 0 {
		return 5
	}
	if attempts > 10 {
		return 10 // backoff doubles per attempt, keep the worst case bounded
	}
	return attempts
}

func getRateLimitMax() int {
	maxStr := os.Getenv("RATE_LIMIT_MAX")
	if maxStr == "" {
		return 30
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max <= 0 {
		return 30
	}
	return max
}

// getSeconds reads a positive number of seconds from key, falling back to def.
func getSeconds(key string, def int) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return time.Duration(def) * time.Second
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(value) * time.Second
}

func getInstances(key string, defaults []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return append([]string(nil), defaults...)
	}

	instances := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" {
			instances = append(instances, part)
		}
	}
	if len(instances) == 0 {
		return append([]string(nil), defaults...)
	}
	return instances
}

// ConfigureLogging applies LOG_LEVEL; unknown values keep the info level.
func ConfigureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, using info", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

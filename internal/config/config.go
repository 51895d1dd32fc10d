package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Service names a deployable binary; each one requires a different subset of keys.
type Service string

const (
	Auth  Service = "auth"
	Posts Service = "posts"
	Users Service = "users"
	Feed  Service = "feed"
)

type Config struct {
	Port      string        `mapstructure:"PORT"`
	Debug     bool          `mapstructure:"DEBUG"`
	JWTSecret string        `mapstructure:"JWT_SECRET_KEY"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	DatabaseURL string `mapstructure:"DATABASE_URI"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AllowedAPITokens []string `mapstructure:"ALLOWED_API_TOKENS"`

	Bucket         string `mapstructure:"POST_IMAGES_BUCKET"`
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioRegion    string `mapstructure:"MINIO_REGION"`

	AMQPURL           string `mapstructure:"AMQP_URI"`
	CreatedPostsQueue string `mapstructure:"CREATED_POSTS_QUEUE_NAME"`
	AccountsExchange  string `mapstructure:"ACCOUNTS_EXCHANGE"`

	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboundTimeout    time.Duration `mapstructure:"OUTBOUND_TIMEOUT"`
	OutboundAttempts   int           `mapstructure:"OUTBOUND_ATTEMPTS"`
}

// defaults lists every key so that AutomaticEnv values reach Unmarshal.
// Empty strings mark keys that must come from the environment.
var defaults = map[string]any{
	"PORT":                     "8080",
	"DEBUG":                    false,
	"JWT_SECRET_KEY":           "",
	"TOKEN_TTL":                "15m",
	"DATABASE_URI":             "",
	"REDIS_URL":                "",
	"ALLOWED_API_TOKENS":       "",
	"POST_IMAGES_BUCKET":       "",
	"MINIO_ENDPOINT":           "",
	"MINIO_ACCESS_KEY":         "",
	"MINIO_SECRET_KEY":         "",
	"MINIO_REGION":             "us-east-1",
	"AMQP_URI":                 "",
	"CREATED_POSTS_QUEUE_NAME": "",
	"ACCOUNTS_EXCHANGE":        "accounts",
	"OUTBOX_POLL_INTERVAL":     "1s",
	"OUTBOUND_TIMEOUT":         "5s",
	"OUTBOUND_ATTEMPTS":        3,
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.AllowedAPITokens = splitTokens(cfg.AllowedAPITokens)
	return cfg
}

// Addr turns PORT into a listen address; both "8080" and ":8080" are accepted.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Validate reports every key the given service needs but did not get.
func (c Config) Validate(svc Service) error {
	required := map[string]string{
		"DATABASE_URI": c.DatabaseURL,
	}
	// Feed-Stream never verifies tokens.
	if svc != Feed {
		required["JWT_SECRET_KEY"] = c.JWTSecret
	}
	switch svc {
	case Auth:
		required["AMQP_URI"] = c.AMQPURL
	case Posts, Feed:
		required["POST_IMAGES_BUCKET"] = c.Bucket
		required["MINIO_ENDPOINT"] = c.MinioEndpoint
		required["MINIO_ACCESS_KEY"] = c.MinioAccessKey
		required["MINIO_SECRET_KEY"] = c.MinioSecretKey
		required["AMQP_URI"] = c.AMQPURL
		required["CREATED_POSTS_QUEUE_NAME"] = c.CreatedPostsQueue
	case Users:
		required["REDIS_URL"] = c.RedisURL
		if len(c.AllowedAPITokens) == 0 {
			required["ALLOWED_API_TOKENS"] = ""
		}
	default:
		return fmt.Errorf("unknown service %q", svc)
	}

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(required)) {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	return errors.Join(errs...)
}

func splitTokens(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, token := range strings.Split(item, ",") {
			if token = strings.TrimSpace(token); token != "" {
				out = append(out, token)
			}
		}
	}
	return out
}

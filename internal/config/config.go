package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTableName        = "image-edit-logs"
	DefaultModelID          = "amazon.titan-image-generator-v2:0"
	DefaultMaxImageBytes    = 5 << 20
	DefaultInferenceTimeout = 25 * time.Second
	DefaultAuditTimeout     = 5 * time.Second
	DefaultPromptMaxLength  = 500
	DefaultCORSOrigin       = "*"
)

// Config is fixed at startup and shared read-only by every invocation.
type Config struct {
	Region           string
	TableName        string
	ModelID          string
	MaxImageBytes    int
	InferenceTimeout time.Duration
	AuditTimeout     time.Duration
	PromptMaxLength  int
	CORSOrigin       string
	RequireAuth      bool
	OutputBucket     string
	LogLevel         string
}

func Default() Config {
	return Config{
		TableName:        DefaultTableName,
		ModelID:          DefaultModelID,
		MaxImageBytes:    DefaultMaxImageBytes,
		InferenceTimeout: DefaultInferenceTimeout,
		AuditTimeout:     DefaultAuditTimeout,
		PromptMaxLength:  DefaultPromptMaxLength,
		CORSOrigin:       DefaultCORSOrigin,
	}
}

// Load builds a Config from getenv (usually os.Getenv), starting from Default.
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	positive := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be a positive integer, got %q", key, v))
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be a positive duration, got %q", key, v))
			return
		}
		*dst = d
	}

	str("AWS_REGION", &cfg.Region)
	str("TABLE_NAME", &cfg.TableName)
	str("MODEL_ID", &cfg.ModelID)
	str("CORS_ORIGIN", &cfg.CORSOrigin)
	str("OUTPUT_BUCKET", &cfg.OutputBucket)
	str("LOG_LEVEL", &cfg.LogLevel)
	positive("MAX_IMAGE_BYTES", &cfg.MaxImageBytes)
	positive("PROMPT_MAX_LENGTH", &cfg.PromptMaxLength)
	duration("INFERENCE_TIMEOUT", &cfg.InferenceTimeout)
	duration("AUDIT_TIMEOUT", &cfg.AuditTimeout)

	if v := strings.TrimSpace(getenv("REQUIRE_AUTH")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REQUIRE_AUTH: must be a boolean, got %q", v))
		}
		cfg.RequireAuth = b
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/younsl/snapshooter/pkg/utils"
)

// FieldError is a validation error on one configuration field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every invalid field of a configuration
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid configuration: %s", e.Errors[0].Error())
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid configuration: %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Validate checks cfg and returns a ValidationError listing every problem
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch cfg.Cloud {
	case CloudOpenStack:
	case CloudAWS:
		if cfg.Region != "" && !utils.IsValidRegion(cfg.Region) {
			add("region", "unknown AWS region %q", cfg.Region)
		}
		if cfg.AWS.SessionName == "" {
			add("aws.sessionName", "must not be empty")
		}
	default:
		add("cloud", "must be %s or %s, got %q", CloudOpenStack, CloudAWS, cfg.Cloud)
	}

	if cfg.PoolSize <= 0 {
		add("poolSize", "must be positive, got %d", cfg.PoolSize)
	}
	if cfg.WaitCompletionTimeout <= 0 {
		add("waitCompletionTimeout", "must be positive, got %d", cfg.WaitCompletionTimeout)
	}
	if cfg.Retry.SubmitAttempts <= 0 {
		add("retry.submitAttempts", "must be positive, got %d", cfg.Retry.SubmitAttempts)
	}
	if cfg.Retry.MinDelay < 0 {
		add("retry.minDelay", "must not be negative")
	}
	if cfg.Retry.MaxDelay <= 0 {
		add("retry.maxDelay", "must be positive, got %s", cfg.Retry.MaxDelay)
	} else if cfg.Retry.MinDelay > cfg.Retry.MaxDelay {
		add("retry.maxDelay", "must be >= minDelay (%s), got %s", cfg.Retry.MinDelay, cfg.Retry.MaxDelay)
	}
	if len(cfg.TrueTokens) == 0 {
		add("trueTokens", "must not be empty")
	}
	if cfg.PushgatewayURL != "" {
		if u, err := url.Parse(cfg.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("pushgatewayURL", "invalid URL %q", cfg.PushgatewayURL)
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

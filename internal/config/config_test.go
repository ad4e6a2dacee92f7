package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, CloudOpenStack, cfg.Cloud)
	assert.Equal(t, 20, cfg.PoolSize)
	assert.Equal(t, 30, cfg.WaitCompletionTimeout)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 3, cfg.Retry.SubmitAttempts)
	assert.Equal(t, time.Second, cfg.Retry.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, []string{"true", "yes", "y", "1"}, cfg.TrueTokens)
	assert.NoError(t, Validate(cfg))
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshooter.yaml")
	content := `
cloud: aws
region: eu-west-1
poolSize: 5
retry:
  minDelay: 500ms
  maxDelay: 2s
trueTokens: ["true", "yes"]
aws:
  roleARNs:
    - arn:aws:iam::111111111111:role/snapshooter
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CloudAWS, cfg.Cloud)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 5, cfg.PoolSize)
	assert.Equal(t, 30, cfg.WaitCompletionTimeout, "unset fields keep defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.MinDelay)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 3, cfg.Retry.SubmitAttempts)
	assert.Equal(t, []string{"true", "yes"}, cfg.TrueTokens)
	assert.Equal(t, []string{"arn:aws:iam::111111111111:role/snapshooter"}, cfg.AWS.RoleARNs)
	assert.Equal(t, DefaultSessionName, cfg.AWS.SessionName)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poolSize: [1"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvCloud:                 "AWS",
		EnvOSCloud:               "prod",
		EnvPoolSize:              "7",
		EnvWaitCompletionTimeout: "45",
		EnvPushgatewayURL:        "http://pushgateway:9091",
		EnvRoleARNs:              "arn:a, arn:b,,",
	}))
	require.NoError(t, err)

	assert.Equal(t, CloudAWS, cfg.Cloud)
	assert.Equal(t, "prod", cfg.OSCloud)
	assert.Equal(t, 7, cfg.PoolSize)
	assert.Equal(t, 45*time.Second, cfg.Timeout())
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
	assert.Equal(t, []string{"arn:a", "arn:b"}, cfg.AWS.RoleARNs)
}

func TestApplyEnvIgnoresEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{EnvPoolSize: ""})))
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
}

func TestApplyEnvInvalidNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{EnvPoolSize: "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPoolSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "unknown cloud", mutate: func(c *Config) { c.Cloud = "gcp" }, field: "cloud"},
		{name: "zero pool", mutate: func(c *Config) { c.PoolSize = 0 }, field: "poolSize"},
		{name: "negative timeout", mutate: func(c *Config) { c.WaitCompletionTimeout = -1 }, field: "waitCompletionTimeout"},
		{name: "no attempts", mutate: func(c *Config) { c.Retry.SubmitAttempts = 0 }, field: "retry.submitAttempts"},
		{name: "inverted delays", mutate: func(c *Config) { c.Retry.MinDelay = 5 * time.Second }, field: "retry.maxDelay"},
		{name: "zero delays", mutate: func(c *Config) { c.Retry.MinDelay, c.Retry.MaxDelay = 0, 0 }, field: "retry.maxDelay"},
		{name: "no tokens", mutate: func(c *Config) { c.TrueTokens = nil }, field: "trueTokens"},
		{name: "bad pushgateway", mutate: func(c *Config) { c.PushgatewayURL = "pushgateway" }, field: "pushgatewayURL"},
		{name: "bad aws region", mutate: func(c *Config) { c.Cloud = CloudAWS; c.Region = "mars-1" }, field: "region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Errors, 1)
			assert.Equal(t, tt.field, verr.Errors[0].Field)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.PoolSize = 0
	cfg.WaitCompletionTimeout = 0

	err := Validate(cfg)
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 2)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestValidateAWSRegion(t *testing.T) {
	cfg := Default()
	cfg.Cloud = CloudAWS
	cfg.Region = "eu-west-1"
	assert.NoError(t, Validate(cfg))
}

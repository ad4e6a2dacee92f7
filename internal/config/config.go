// Package config loads the snapshooter run configuration. Values come from,
// in increasing precedence: defaults, an optional YAML file, environment
// variables, then command line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported cloud providers
const (
	CloudOpenStack = "openstack"
	CloudAWS       = "aws"
)

// Defaults
const (
	DefaultCloud                 = CloudOpenStack
	DefaultPoolSize              = 20
	DefaultWaitCompletionTimeout = 30
	DefaultSubmitAttempts        = 3
	DefaultMinDelay              = time.Second
	DefaultMaxDelay              = 3 * time.Second
	DefaultSessionName           = "snapshooter"
)

// Environment variables read by ApplyEnv
const (
	EnvCloud                 = "SNAPSHOOTER_CLOUD"
	EnvOSCloud               = "OS_CLOUD"
	EnvRegion                = "SNAPSHOOTER_REGION"
	EnvPoolSize              = "POOL_SIZE"
	EnvWaitCompletionTimeout = "WAIT_COMPLETION_TIMEOUT"
	EnvPushgatewayURL        = "PUSHGATEWAY_URL"
	EnvRoleARNs              = "SNAPSHOOTER_AWS_ROLE_ARNS"
)

// Config is the run configuration
type Config struct {
	// Cloud selects the provider adapter: openstack or aws
	Cloud string `yaml:"cloud"`
	// OSCloud names the clouds.yaml entry; empty means OS_* variables
	OSCloud string `yaml:"osCloud"`
	Region  string `yaml:"region"`

	PoolSize int `yaml:"poolSize"`
	// WaitCompletionTimeout bounds deletion confirmation and creation
	// completion, in seconds
	WaitCompletionTimeout int `yaml:"waitCompletionTimeout"`

	Retry Retry `yaml:"retry"`

	// TrueTokens are the automatic_snapshots values opting a volume in
	TrueTokens []string `yaml:"trueTokens"`

	PushgatewayURL string `yaml:"pushgatewayURL"`

	AWS AWS `yaml:"aws"`
}

// Retry configures delete submission retries
type Retry struct {
	SubmitAttempts int           `yaml:"submitAttempts"`
	MinDelay       time.Duration `yaml:"minDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
}

// AWS holds settings of the aws provider
type AWS struct {
	// RoleARNs are assumed as delegated tenants, like OpenStack trusts
	RoleARNs    []string `yaml:"roleARNs"`
	SessionName string   `yaml:"sessionName"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Cloud:                 DefaultCloud,
		PoolSize:              DefaultPoolSize,
		WaitCompletionTimeout: DefaultWaitCompletionTimeout,
		Retry: Retry{
			SubmitAttempts: DefaultSubmitAttempts,
			MinDelay:       DefaultMinDelay,
			MaxDelay:       DefaultMaxDelay,
		},
		TrueTokens: []string{"true", "yes", "y", "1"},
		AWS: AWS{
			SessionName: DefaultSessionName,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the environment variables found by lookup,
// usually os.LookupEnv
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCloud); ok && v != "" {
		c.Cloud = strings.ToLower(v)
	}
	if v, ok := lookup(EnvOSCloud); ok && v != "" {
		c.OSCloud = v
	}
	if v, ok := lookup(EnvRegion); ok && v != "" {
		c.Region = v
	}
	if v, ok := lookup(EnvPoolSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPoolSize, v, err)
		}
		c.PoolSize = n
	}
	if v, ok := lookup(EnvWaitCompletionTimeout); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWaitCompletionTimeout, v, err)
		}
		c.WaitCompletionTimeout = n
	}
	if v, ok := lookup(EnvPushgatewayURL); ok && v != "" {
		c.PushgatewayURL = v
	}
	if v, ok := lookup(EnvRoleARNs); ok && v != "" {
		c.AWS.RoleARNs = splitList(v)
	}
	return nil
}

// Timeout returns the wait-completion timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.WaitCompletionTimeout) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

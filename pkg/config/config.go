package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sre-sentinel/sentinel/pkg/types"
)

// Config holds all Sentinel runtime configuration. Values come from an
// optional YAML file overridden by environment variables.
type Config struct {
	// Inference endpoints
	FastClassifierURL   string `yaml:"fast_classifier_url"`
	FastClassifierKey   string `yaml:"fast_classifier_key"`
	FastClassifierModel string `yaml:"fast_classifier_model"`
	DeepAnalyzerURL     string `yaml:"deep_analyzer_url"`
	DeepAnalyzerKey     string `yaml:"deep_analyzer_key"`
	DeepAnalyzerModel   string `yaml:"deep_analyzer_model"`

	// Remediation gateway
	ToolGatewayURL string `yaml:"tool_gateway_url"`

	// External interface
	APIPort int `yaml:"api_port"`

	// Pipeline behavior
	AutoHealEnabled  bool          `yaml:"auto_heal_enabled"`
	LogLinesPerCheck int           `yaml:"log_lines_per_check"`
	LogCheckInterval time.Duration `yaml:"log_check_interval"`

	// Optional durable event fan-out
	EventBusPath   string   `yaml:"event_bus_path"`
	EventBusTopics []string `yaml:"event_bus_topics"`
}

// Default returns the built-in configuration defaults
func Default() *Config {
	return &Config{
		APIPort:          8000,
		AutoHealEnabled:  true,
		LogLinesPerCheck: 20,
		LogCheckInterval: 5 * time.Second,
	}
}

// Load builds the configuration from the optional YAML file at path (empty
// string skips it) and the process environment. Environment wins over file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrConfig, "config.load", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.NewError(types.ErrConfig, "config.parse", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.FastClassifierURL, "FAST_CLASSIFIER_URL")
	setString(&c.FastClassifierKey, "FAST_CLASSIFIER_KEY")
	setString(&c.FastClassifierModel, "FAST_CLASSIFIER_MODEL")
	setString(&c.DeepAnalyzerURL, "DEEP_ANALYZER_URL")
	setString(&c.DeepAnalyzerKey, "DEEP_ANALYZER_KEY")
	setString(&c.DeepAnalyzerModel, "DEEP_ANALYZER_MODEL")
	setString(&c.ToolGatewayURL, "TOOL_GATEWAY_URL")
	setString(&c.EventBusPath, "EVENT_BUS_PATH")

	setInt(&c.APIPort, "API_PORT")
	setInt(&c.LogLinesPerCheck, "LOG_LINES_PER_CHECK")
	setBool(&c.AutoHealEnabled, "AUTO_HEAL_ENABLED")
	setDuration(&c.LogCheckInterval, "LOG_CHECK_INTERVAL")

	if v, ok := os.LookupEnv("EVENT_BUS_TOPICS"); ok {
		c.EventBusTopics = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.EventBusTopics = append(c.EventBusTopics, t)
			}
		}
	}
}

// Validate checks required values and ranges
func (c *Config) Validate() error {
	var missing []string
	if c.FastClassifierURL == "" {
		missing = append(missing, "FAST_CLASSIFIER_URL")
	}
	if c.DeepAnalyzerURL == "" {
		missing = append(missing, "DEEP_ANALYZER_URL")
	}
	if c.ToolGatewayURL == "" {
		missing = append(missing, "TOOL_GATEWAY_URL")
	}
	if len(missing) > 0 {
		return types.NewError(types.ErrConfig, "config.validate",
			fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return types.NewError(types.ErrConfig, "config.validate",
			fmt.Errorf("invalid API_PORT %d", c.APIPort))
	}
	if c.LogLinesPerCheck < 1 {
		return types.NewError(types.ErrConfig, "config.validate",
			fmt.Errorf("LOG_LINES_PER_CHECK must be >= 1, got %d", c.LogLinesPerCheck))
	}
	if c.LogCheckInterval < time.Second {
		return types.NewError(types.ErrConfig, "config.validate",
			fmt.Errorf("LOG_CHECK_INTERVAL must be >= 1s, got %s", c.LogCheckInterval))
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else if n, err := strconv.Atoi(v); err == nil {
			// bare integers are seconds
			*dst = time.Duration(n) * time.Second
		}
	}
}

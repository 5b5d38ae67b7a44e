// Package config loads the bot configuration from defaults, an optional YAML file,
// and the environment, in that order of precedence (environment wins).
package config

import (
	"fmt"
	"strings"
	"time"

	"linechat/pkg/activation"
)

// Defaults for optional settings.
const (
	DefaultModel              = "gpt-3.5-turbo"
	DefaultTemperature        = 0.0
	DefaultMaxTokens          = 2000
	DefaultFrequencyPenalty   = 0.0
	DefaultPresencePenalty    = 0.0
	DefaultTimeout            = 60 * time.Second
	DefaultContextWindow      = 10
	DefaultPort               = 8080
	EnvConfigPath             = "LINECHAT_CONFIG"
	EnvLineChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "LINE_CHANNEL_SECRET"
	EnvOpenAIAPIKey           = "OPENAI_API_KEY"
)

// LineConfig holds the LINE Messaging API credentials.
type LineConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token" env:"LINE_CHANNEL_ACCESS_TOKEN"`
	ChannelSecret      string `yaml:"channel_secret" env:"LINE_CHANNEL_SECRET"`
}

// OpenAIConfig holds the completion provider settings.
type OpenAIConfig struct {
	APIKey           string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model            string        `yaml:"model" env:"OPENAI_MODEL"`
	BaseURL          string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Temperature      float64       `yaml:"temperature" env:"OPENAI_TEMPERATURE"`
	MaxTokens        int           `yaml:"max_tokens" env:"OPENAI_MAX_TOKENS"`
	FrequencyPenalty float64       `yaml:"frequency_penalty" env:"OPENAI_FREQUENCY_PENALTY"`
	PresencePenalty  float64       `yaml:"presence_penalty" env:"OPENAI_PRESENCE_PENALTY"`
	Timeout          time.Duration `yaml:"timeout" env:"OPENAI_TIMEOUT"`
}

// BotConfig holds conversation behavior.
type BotConfig struct {
	// SystemDirective is the fixed system message; empty disables injection.
	SystemDirective    string `yaml:"system_directive" env:"FIXED_SYSTEM_DIRECTIVE,clearable"`
	ActivateCommand    string `yaml:"activate_command" env:"ACTIVATE_COMMAND"`
	DeactivateCommand  string `yaml:"deactivate_command" env:"DEACTIVATE_COMMAND"`
	ActivateReply      string `yaml:"activate_reply" env:"ACTIVATE_REPLY"`
	DeactivateReply    string `yaml:"deactivate_reply" env:"DEACTIVATE_REPLY"`
	ContextWindow      int    `yaml:"context_window" env:"CONTEXT_WINDOW"`
	DefaultTalking     bool   `yaml:"default_talking" env:"DEFAULT_TALKING"`
	RecordErrorReplies bool   `yaml:"record_error_replies" env:"RECORD_ERROR_REPLIES"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

// Config is the complete process configuration.
type Config struct {
	Line   LineConfig   `yaml:"line"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Bot    BotConfig    `yaml:"bot"`
	Server ServerConfig `yaml:"server"`
	Debug  bool         `yaml:"debug" env:"DEBUG"`
}

// Default returns a configuration with every optional setting at its default and the
// required credentials empty.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:            DefaultModel,
			Temperature:      DefaultTemperature,
			MaxTokens:        DefaultMaxTokens,
			FrequencyPenalty: DefaultFrequencyPenalty,
			PresencePenalty:  DefaultPresencePenalty,
			Timeout:          DefaultTimeout,
		},
		Bot: BotConfig{
			ActivateCommand:   activation.DefaultActivateCommand,
			DeactivateCommand: activation.DefaultDeactivateCommand,
			ActivateReply:     activation.DefaultActivateReply,
			DeactivateReply:   activation.DefaultDeactivateReply,
			ContextWindow:     DefaultContextWindow,
			DefaultTalking:    true,
		},
		Server: ServerConfig{
			Port: DefaultPort,
		},
	}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Summary describes the effective configuration for the startup log. Secrets are omitted.
func (c *Config) Summary() string {
	directive := "none"
	if c.Bot.SystemDirective != "" {
		directive = fmt.Sprintf("%d chars", len([]rune(c.Bot.SystemDirective)))
	}
	return fmt.Sprintf("model=%s temperature=%.2f max_tokens=%d timeout=%s window=%d directive=%s talking=%t record_errors=%t port=%d",
		c.OpenAI.Model, c.OpenAI.Temperature, c.OpenAI.MaxTokens, c.OpenAI.Timeout,
		c.Bot.ContextWindow, directive, c.Bot.DefaultTalking, c.Bot.RecordErrorReplies, c.Server.Port)
}

// normalize trims the command words; inbound text is trimmed before matching, so padded
// commands could never match.
func (c *Config) normalize() {
	c.Bot.ActivateCommand = strings.TrimSpace(c.Bot.ActivateCommand)
	c.Bot.DeactivateCommand = strings.TrimSpace(c.Bot.DeactivateCommand)
}

// Error reports every missing or invalid setting found while loading.
type Error struct {
	Missing []string // Required keys with no value
	Invalid []string // "KEY: reason" entries
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, "; "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

func (e *Error) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *Error) invalid(key, format string, args ...any) {
	e.Invalid = append(e.Invalid, key+": "+fmt.Sprintf(format, args...))
}

// Validate checks required keys and value ranges. It returns *Error listing every problem.
func (c *Config) Validate() error {
	cerr := &Error{}
	c.validate(cerr)
	if cerr.empty() {
		return nil
	}
	return cerr
}

func (c *Config) validate(cerr *Error) {
	required := []struct {
		key   string
		value string
	}{
		{EnvLineChannelAccessToken, c.Line.ChannelAccessToken},
		{EnvLineChannelSecret, c.Line.ChannelSecret},
		{EnvOpenAIAPIKey, c.OpenAI.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cerr.Missing = append(cerr.Missing, r.key)
		}
	}

	if strings.TrimSpace(c.OpenAI.Model) == "" {
		cerr.invalid("OPENAI_MODEL", "must not be empty")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		cerr.invalid("OPENAI_TEMPERATURE", "must be between 0 and 2, got %g", c.OpenAI.Temperature)
	}
	if c.OpenAI.MaxTokens <= 0 {
		cerr.invalid("OPENAI_MAX_TOKENS", "must be positive, got %d", c.OpenAI.MaxTokens)
	}
	if c.OpenAI.FrequencyPenalty < -2 || c.OpenAI.FrequencyPenalty > 2 {
		cerr.invalid("OPENAI_FREQUENCY_PENALTY", "must be between -2 and 2, got %g", c.OpenAI.FrequencyPenalty)
	}
	if c.OpenAI.PresencePenalty < -2 || c.OpenAI.PresencePenalty > 2 {
		cerr.invalid("OPENAI_PRESENCE_PENALTY", "must be between -2 and 2, got %g", c.OpenAI.PresencePenalty)
	}
	if c.OpenAI.Timeout < 0 {
		cerr.invalid("OPENAI_TIMEOUT", "must not be negative, got %s", c.OpenAI.Timeout)
	}

	if c.Bot.ContextWindow < 1 {
		cerr.invalid("CONTEXT_WINDOW", "must be at least 1, got %d", c.Bot.ContextWindow)
	}
	if strings.TrimSpace(c.Bot.ActivateCommand) == "" {
		cerr.invalid("ACTIVATE_COMMAND", "must not be empty")
	}
	if strings.TrimSpace(c.Bot.DeactivateCommand) == "" {
		cerr.invalid("DEACTIVATE_COMMAND", "must not be empty")
	}
	if activate := strings.TrimSpace(c.Bot.ActivateCommand); activate != "" && activate == strings.TrimSpace(c.Bot.DeactivateCommand) {
		cerr.invalid("DEACTIVATE_COMMAND", "must differ from ACTIVATE_COMMAND")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		cerr.invalid("PORT", "must be between 1 and 65535, got %d", c.Server.Port)
	}
}

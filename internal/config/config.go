// Package config loads the application configuration from the environment.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Chative-cs-agent/server/internal/agent/feedback"
	"github.com/Chative-cs-agent/server/internal/agent/llm"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/repo"
	"github.com/Chative-cs-agent/server/internal/agent/tasks"
	"github.com/Chative-cs-agent/server/internal/core"
	"github.com/Chative-cs-agent/server/internal/server"
	"github.com/Chative-cs-agent/server/internal/session"
	pkgredis "github.com/Chative-cs-agent/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis     pkgredis.Config
	Store     repo.StoreConfig
	Logistics repo.LogisticsConfig

	// LLM provider; the agent runs on rules and templates without a key.
	Gemini llm.GeminiConfig
	Router model.RouterModelConfig
	Answer model.AnswerModelConfig

	// Agent configs
	Cache     model.CacheConfig
	Session   model.SessionConfig
	Knowledge model.KnowledgeConfig
	Business  model.BusinessConfig
	Feedback  feedback.Config

	// Transport
	HTTP       server.Config
	WebSocket  session.Config
	Background tasks.Config
}

// Env returns the parsed deployment environment.
func (c AppConfig) Env() core.Environment {
	return core.ParseEnvironment(c.Environment)
}

// Load reads envFiles (missing files are ignored) and then the environment.
func Load(envFiles ...string) (AppConfig, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// GeminiConfig holds the provider credentials. An empty APIKey disables the LLM.
type GeminiConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
}

func (c GeminiConfig) Enabled() bool { return c.APIKey != "" }

// Models holds the router and answer clients.
type Models struct {
	Router *Client
	Answer *Client
}

// NewGeminiModels creates both chat models against one genai client.
func NewGeminiModels(ctx context.Context, cfg GeminiConfig, routerCfg model.RouterModelConfig, answerCfg model.AnswerModelConfig) (*Models, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// Classification needs no thinking budget.
	routerModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       routerCfg.Model,
		Temperature: &routerCfg.Temperature,
		MaxTokens:   &routerCfg.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	answerModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       answerCfg.Model,
		Temperature: &answerCfg.Temperature,
		MaxTokens:   &answerCfg.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating answer model")
		return nil, fmt.Errorf("error creating answer model: %w", err)
	}

	router, err := NewClient(ctx, routerCfg.Model, routerModel, routerCfg.Timeout)
	if err != nil {
		return nil, err
	}
	answer, err := NewClient(ctx, answerCfg.Model, answerModel, 0)
	if err != nil {
		return nil, err
	}

	logx.Info().Str("router", routerCfg.Model).Str("answer", answerCfg.Model).Msg("Gemini models ready")
	return &Models{Router: router, Answer: answer}, nil
}

package model

import "time"

// ================ Config ================
type SessionConfig struct {
	TTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	MaxTurns int           `envconfig:"SESSION_MAX_TURNS" default:"3"`
}

type RouterModelConfig struct {
	Model       string        `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int           `envconfig:"ROUTER_MAX_TOKENS" default:"500"`
	Temperature float32       `envconfig:"ROUTER_TEMPERATURE" default:"0.1"`
	Timeout     time.Duration `envconfig:"ROUTER_TIMEOUT" default:"10s"`
}

type AnswerModelConfig struct {
	Model       string  `envconfig:"ANSWER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ANSWER_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"ANSWER_TEMPERATURE" default:"0.1"`
}

type CacheConfig struct {
	ResponseTTL  time.Duration `envconfig:"CACHE_RESPONSE_TTL" default:"300s"`
	PolicyTTL    time.Duration `envconfig:"CACHE_POLICY_TTL" default:"60m"`
	ProductTTL   time.Duration `envconfig:"CACHE_PRODUCT_TTL" default:"30m"`
	KnowledgeLen int           `envconfig:"CACHE_KNOWLEDGE_MIN_LEN" default:"10"`
	HotIntentLen int           `envconfig:"CACHE_HOT_INTENT_MIN_LEN" default:"20"`
	LongAnswer   int           `envconfig:"CACHE_LONG_ANSWER_MIN_LEN" default:"80"`
}

type KnowledgeConfig struct {
	Path  string `envconfig:"KNOWLEDGE_PATH" default:"knowledge.yaml"`
	Limit int    `envconfig:"KNOWLEDGE_LIMIT" default:"3"`
}

type BusinessConfig struct {
	Name    string `envconfig:"BUSINESS_NAME" default:"智能客服"`
	Hotline string `envconfig:"BUSINESS_HOTLINE" default:"400-123-4567"`
}

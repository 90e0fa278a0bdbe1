package services

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultDeepseekClient is the alternate answer-generator backend, selected
// with USE_DEEPSEEK_GENERATOR. Deepseek speaks the OpenAI wire protocol, so
// the same client type serves both; DEEPSEEK_API_BASE points it at a
// self-hosted deployment.
var DefaultDeepseekClient = sync.OnceValue(func() *openai.Client {
	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		panic("DEEPSEEK_API_KEY is not set, please set it in MCP Config")
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = "https://api.deepseek.com/v1"
	if base := os.Getenv("DEEPSEEK_API_BASE"); base != "" {
		config.BaseURL = base
	}
	config.HTTPClient = &http.Client{Timeout: 90 * time.Second}

	return openai.NewClientWithConfig(config)
})

package services

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIClient is the shared client behind the embedder, the answer
// generator, and LLM claim extraction. OPENAI_BASE_URL redirects it at any
// wire-compatible endpoint. The HTTP timeout is a last-resort bound; callers
// pass per-attempt context deadlines on top of it.
var DefaultOpenAIClient = sync.OnceValue(func() *openai.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		panic("OPENAI_API_KEY is not set, please set it in MCP Config")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: 90 * time.Second}

	return openai.NewClientWithConfig(config)
})

package platform

import (
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"streamchat/config"
)

// NewLLMClient builds a client for an OpenAI-compatible text-generation
// endpoint (TGI and Hugging Face Inference Endpoints serve /v1/completions).
// Retries are disabled: a failed stream ends the turn instead of being replayed.
func NewLLMClient(cfg config.HuggingFace) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)
}

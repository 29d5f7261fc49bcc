package service

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"

	"streamchat/config"
	"streamchat/platform"
	"streamchat/stream"
)

// GenerationOptions are the sampling parameters sent with every request.
type GenerationOptions struct {
	MaxNewTokens      int64
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	Stop              []string
}

func GenerationOptionsFrom(cfg config.HuggingFace) GenerationOptions {
	stop := cfg.Stop
	if len(stop) == 0 {
		stop = config.DefaultStop
	}
	return GenerationOptions{
		MaxNewTokens:      cfg.MaxNewTokens,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		RepetitionPenalty: cfg.RepetitionPenalty,
		Stop:              stop,
	}
}

// InferenceService opens completion streams against an OpenAI-compatible
// text-generation endpoint.
type InferenceService struct {
	client  openai.Client
	modelID string
	opts    GenerationOptions
	tokens  TokenCounter
	budget  int
	log     *logrus.Entry
}

func NewInferenceService(client openai.Client, cfg config.HuggingFace, tokens TokenCounter) *InferenceService {
	return &InferenceService{
		client:  client,
		modelID: cfg.ModelID,
		opts:    GenerationOptionsFrom(cfg),
		tokens:  tokens,
		budget:  cfg.PromptTokenBudget,
		log:     platform.Logger.WithField("component", "inference"),
	}
}

// Stream sends the flattened history and returns a reader over the reply.
// Cancelling ctx closes the HTTP connection to the endpoint.
func (s *InferenceService) Stream(ctx context.Context, turns []Turn) (*stream.Reader, error) {
	prompt, dropped := FitPrompt(turns, s.tokens, s.budget)
	if dropped > 0 {
		s.log.Infof("dropped %d oldest turns to fit the prompt budget", dropped)
	}

	params := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(s.modelID),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens:   openai.Int(s.opts.MaxNewTokens),
		Temperature: openai.Float(s.opts.Temperature),
		TopP:        openai.Float(s.opts.TopP),
	}
	if len(s.opts.Stop) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: s.opts.Stop}
	}

	var reqOpts []option.RequestOption
	if s.opts.RepetitionPenalty > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("repetition_penalty", s.opts.RepetitionPenalty))
	}

	upstream := s.client.Completions.NewStreaming(ctx, params, reqOpts...)
	if err := upstream.Err(); err != nil {
		upstream.Close()
		return nil, &stream.TransportError{Err: err}
	}
	// The endpoint also stops on these, the reader catches markers split
	// across tokens that the server let through.
	return stream.NewReader(stream.FromCompletions(upstream), trimmed(s.opts.Stop)), nil
}

func trimmed(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if strings.TrimSpace(m) != "" {
			out = append(out, m)
		}
	}
	return out
}

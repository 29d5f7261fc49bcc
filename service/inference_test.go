package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/config"
	"streamchat/model"
	"streamchat/platform"
	"streamchat/stream"
)

func completionChunk(text string) string {
	return fmt.Sprintf(`{"id":"cmpl-1","object":"text_completion","created":1,"model":"llama","choices":[{"index":0,"text":%q,"logprobs":null,"finish_reason":null}]}`, text)
}

func sseServer(t *testing.T, captured *map[string]any, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestInference(baseURL string) *InferenceService {
	cfg := config.HuggingFace{
		APIKey:            "hf_test",
		ModelID:           "meta-llama/Llama-2-7b-chat-hf",
		BaseURL:           baseURL + "/v1",
		MaxNewTokens:      1000,
		Temperature:       0.7,
		TopP:              0.95,
		RepetitionPenalty: 1.1,
		Stop:              config.DefaultStop,
	}
	return NewInferenceService(platform.NewLLMClient(cfg), cfg, nil)
}

func readAll(t *testing.T, r *stream.Reader) string {
	t.Helper()
	var b strings.Builder
	for r.Next() {
		b.WriteString(r.Delta())
	}
	return b.String()
}

func TestInferenceStreamsCompletion(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, &body, completionChunk("Hi"), completionChunk(" there"), "[DONE]")
	svc := newTestInference(srv.URL)

	r, err := svc.Stream(context.Background(), []Turn{{Role: model.RoleUser, Content: "Hello"}})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", readAll(t, r))
	require.NoError(t, r.Err())

	assert.Equal(t, "User: Hello\nAssistant: ", body["prompt"])
	assert.Equal(t, "meta-llama/Llama-2-7b-chat-hf", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, 1000, body["max_tokens"])
	assert.InDelta(t, 0.7, body["temperature"], 1e-9)
	assert.InDelta(t, 0.95, body["top_p"], 1e-9)
	assert.InDelta(t, 1.1, body["repetition_penalty"], 1e-9)
	assert.Equal(t, []any{"User:", "\nUser:", "Assistant:", "\nAssistant:"}, body["stop"])
}

func TestInferenceTruncatesAtMarker(t *testing.T) {
	srv := sseServer(t, nil, completionChunk("Answer"), completionChunk("\nUs"), completionChunk("er: next"), "[DONE]")
	r, err := newTestInference(srv.URL).Stream(context.Background(), []Turn{{Role: model.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "Answer", readAll(t, r))
	assert.True(t, r.Stopped())
}

func TestInferenceMidStreamError(t *testing.T) {
	srv := sseServer(t, nil, completionChunk("partial"), `{"error":{"message":"overloaded"}}`)
	r, err := newTestInference(srv.URL).Stream(context.Background(), []Turn{{Role: model.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "partial", readAll(t, r))
	assert.True(t, stream.IsTransportError(r.Err()))
}

func TestInferenceOpenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := newTestInference(srv.URL).Stream(context.Background(), []Turn{{Role: model.RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.True(t, stream.IsTransportError(err))
}

func TestGenerationOptionsDefaultStop(t *testing.T) {
	opts := GenerationOptionsFrom(config.HuggingFace{MaxNewTokens: 10})
	assert.Equal(t, config.DefaultStop, opts.Stop)
}

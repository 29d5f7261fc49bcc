package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("HUGGING_FACE_API_KEY", "hf_test")
	t.Setenv("HUGGING_FACE_MODEL_ID", "meta-llama/Llama-2-7b-chat-hf")
	t.Setenv("ACCESS_SECRET", "secret")
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(1000), cfg.HuggingFace.MaxNewTokens)
	assert.InDelta(t, 0.7, cfg.HuggingFace.Temperature, 1e-9)
	assert.InDelta(t, 0.95, cfg.HuggingFace.TopP, 1e-9)
	assert.InDelta(t, 1.1, cfg.HuggingFace.RepetitionPenalty, 1e-9)
	assert.Equal(t, DefaultStop, cfg.HuggingFace.Stop)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Mode)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
}

func TestParseMissingModelID(t *testing.T) {
	t.Setenv("HUGGING_FACE_API_KEY", "hf_test")
	t.Setenv("HUGGING_FACE_MODEL_ID", "")
	t.Setenv("ACCESS_SECRET", "secret")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HUGGING_FACE_MODEL_ID")
}

func TestParseMissingAPIKey(t *testing.T) {
	t.Setenv("HUGGING_FACE_API_KEY", "")
	t.Setenv("HUGGING_FACE_MODEL_ID", "model")
	t.Setenv("ACCESS_SECRET", "secret")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HUGGING_FACE_API_KEY")
}

func TestParseStopOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("HF_STOP", "</s>|[INST]")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, []string{"</s>", "[INST]"}, cfg.HuggingFace.Stop)
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Parse()
	require.Error(t, err)
}

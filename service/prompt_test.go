package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"streamchat/model"
)

type byteCounter struct{}

func (byteCounter) Count(text string) int { return len(text) }

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]Turn{
		{Role: model.RoleUser, Content: "Hello"},
		{Role: model.RoleAssistant, Content: "Hi there"},
		{Role: model.RoleUser, Content: "Explain X"},
	})
	assert.Equal(t, "User: Hello\nAssistant: Hi there\nUser: Explain X\nAssistant: ", prompt)
}

func TestBuildPromptKeepsConsecutiveRoles(t *testing.T) {
	prompt := BuildPrompt([]Turn{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleUser, Content: "b"},
	})
	assert.Equal(t, "User: a\nUser: b\nAssistant: ", prompt)
}

func TestFitPromptDropsOldestTurns(t *testing.T) {
	turns := []Turn{
		{Role: model.RoleUser, Content: "first question"},
		{Role: model.RoleAssistant, Content: "first answer"},
		{Role: model.RoleUser, Content: "second"},
	}
	full := BuildPrompt(turns)

	prompt, dropped := FitPrompt(turns, byteCounter{}, len(full))
	assert.Equal(t, full, prompt)
	assert.Zero(t, dropped)

	prompt, dropped = FitPrompt(turns, byteCounter{}, len(full)-1)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "Assistant: first answer\nUser: second\nAssistant: ", prompt)

	prompt, dropped = FitPrompt(turns, byteCounter{}, 1)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, "User: second\nAssistant: ", prompt)

	_, dropped = FitPrompt(turns, byteCounter{}, 0)
	assert.Zero(t, dropped)
}

func TestTurnsFromSkipsEmpty(t *testing.T) {
	turns := TurnsFrom([]model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: ""},
	})
	assert.Equal(t, []Turn{{Role: model.RoleUser, Content: "hi"}}, turns)
}

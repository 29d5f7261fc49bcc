package service

import (
	"strings"

	"streamchat/model"
)

// Turn is one entry of the conversation history sent for generation.
type Turn struct {
	Role    model.Role
	Content string
}

const assistantCue = "\nAssistant: "

// TokenCounter estimates the token length of a prompt.
type TokenCounter interface {
	Count(text string) int
}

func roleLabel(r model.Role) string {
	if r == model.RoleUser {
		return "User: "
	}
	return "Assistant: "
}

// BuildPrompt flattens turns into labelled lines followed by an open
// assistant label. Consecutive turns of the same role are kept as they are.
func BuildPrompt(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(roleLabel(t.Role))
		b.WriteString(t.Content)
	}
	b.WriteString(assistantCue)
	return b.String()
}

// FitPrompt drops the oldest turns until the prompt fits within budget
// tokens. The latest turn is always kept. A budget <= 0 disables trimming.
func FitPrompt(turns []Turn, counter TokenCounter, budget int) (string, int) {
	prompt := BuildPrompt(turns)
	if budget <= 0 || counter == nil {
		return prompt, 0
	}
	dropped := 0
	for len(turns)-dropped > 1 && counter.Count(prompt) > budget {
		dropped++
		prompt = BuildPrompt(turns[dropped:])
	}
	return prompt, dropped
}

// TurnsFrom converts chat messages to turns, skipping empty content.
func TurnsFrom(messages []model.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

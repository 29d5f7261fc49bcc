package platform

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts prompt tokens. Llama-family tokenizers are not shipped
// with tiktoken, cl100k_base is a close enough estimate for budgeting.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter(encoding string) *TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		Logger.Warnf("[tokens] encoding %s unavailable, falling back to byte estimate: %s", encoding, err)
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (t *TokenCounter) Count(text string) int {
	if t == nil || t.enc == nil {
		// roughly four bytes per token for English text
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

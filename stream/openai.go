package stream

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

type completionUpstream struct {
	s *ssestream.Stream[openai.Completion]
}

// FromCompletions adapts an openai-go completion stream. The [DONE] sentinel
// is consumed by ssestream and surfaces as a normal end of stream.
func FromCompletions(s *ssestream.Stream[openai.Completion]) Upstream {
	return &completionUpstream{s: s}
}

func (u *completionUpstream) Next() bool { return u.s.Next() }

func (u *completionUpstream) Text() string {
	cur := u.s.Current()
	if len(cur.Choices) == 0 {
		return ""
	}
	return cur.Choices[0].Text
}

func (u *completionUpstream) Err() error { return u.s.Err() }

func (u *completionUpstream) Close() error { return u.s.Close() }

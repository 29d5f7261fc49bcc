package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the in-flight assistant reply of one turn.
type Session struct {
	id        string
	chatID    string
	startedAt time.Time
	cancel    context.CancelFunc

	mu        sync.Mutex
	content   strings.Builder
	cancelled bool
	finalized bool
}

func newSession(chatID string, cancel context.CancelFunc) *Session {
	return &Session{
		id:        uuid.NewString(),
		chatID:    chatID,
		startedAt: time.Now(),
		cancel:    cancel,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) ChatID() string { return s.chatID }

func (s *Session) StartedAt() time.Time { return s.startedAt }

// Content is the text accumulated so far. It stays readable after a cancel.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.String()
}

func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

func (s *Session) ended() bool {
	return s.cancelled || s.finalized
}

// Package conversation keeps the in-memory view of the active chat for one
// client and the single stream slot that guards it.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamchat/model"
)

// State owns the active chat, its ordered messages, the attachment index and
// at most one live Session. All methods are safe for concurrent use.
type State struct {
	mu          sync.Mutex
	chat        model.Chat
	messages    []model.Message
	attachments map[string][]model.Attachment

	live    *Session
	partial *Session
	touched time.Time
}

// Snapshot is a detached copy of a State.
type Snapshot struct {
	Chat        model.Chat                    `json:"chat"`
	Partial     string                        `json:"partial,omitempty"`
	Streaming   bool                          `json:"streaming"`
	Attachments map[string][]model.Attachment `json:"attachments,omitempty"`
}

func New() *State {
	return &State{
		attachments: map[string][]model.Attachment{},
		touched:     time.Now(),
	}
}

func (st *State) touch() {
	st.touched = time.Now()
}

// Touched is the time of the last mutation.
func (st *State) Touched() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.touched
}

// BeginStream claims the stream slot for chatID. cancel is invoked when the
// session is cancelled and should tear down the upstream transport.
func (st *State) BeginStream(chatID string, cancel context.CancelFunc) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.live != nil {
		return nil, &ConflictError{Op: "beginStream", ChatID: st.live.chatID}
	}
	if cancel == nil {
		cancel = func() {}
	}
	s := newSession(chatID, cancel)
	st.live = s
	st.partial = nil
	st.touch()
	return s, nil
}

// AppendDelta adds streamed text to the session. It has no effect once the
// session is finalized or cancelled.
func (st *State) AppendDelta(s *Session, text string) bool {
	if text == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended() {
		return false
	}
	s.content.WriteString(text)
	return true
}

// FinalizeStream turns the session content into an assistant message on the
// active chat and frees the slot. The bool is false when the session was
// already cancelled or finalized.
func (st *State) FinalizeStream(s *Session) (model.Message, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s.mu.Lock()
	if s.ended() {
		s.mu.Unlock()
		return model.Message{}, false
	}
	s.finalized = true
	content := s.content.String()
	s.mu.Unlock()

	msg := model.Message{
		ChatID:    st.chat.ID,
		ClientID:  uuid.NewString(),
		Role:      model.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
	st.messages = append(st.messages, msg)
	if st.live == s {
		st.live = nil
	}
	if st.partial == s {
		st.partial = nil
	}
	st.touch()
	return msg, true
}

// CancelStream marks the session cancelled, closes its transport and frees the
// slot. The accumulated text stays visible through Partial until the next
// stream begins or DiscardPartial is called.
func (st *State) CancelStream(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s.mu.Lock()
	if s.ended() {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()

	s.cancel()
	if st.live == s {
		st.live = nil
		st.partial = s
	}
	st.touch()
}

// CancelLive cancels the live session, if any.
func (st *State) CancelLive() bool {
	st.mu.Lock()
	s := st.live
	st.mu.Unlock()
	if s == nil {
		return false
	}
	st.CancelStream(s)
	return true
}

func (st *State) Live() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.live
}

// Partial is the text of the live session, or of the last cancelled one.
func (st *State) Partial() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.partialLocked()
}

func (st *State) partialLocked() string {
	switch {
	case st.live != nil:
		return st.live.Content()
	case st.partial != nil:
		return st.partial.Content()
	}
	return ""
}

func (st *State) DiscardPartial() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.partial = nil
}

// AppendOptimistic appends a message that exists only locally. A ClientID is
// assigned when the caller did not provide one.
func (st *State) AppendOptimistic(m model.Message) model.Message {
	st.mu.Lock()
	defer st.mu.Unlock()
	if m.ClientID == "" {
		m.ClientID = uuid.NewString()
	}
	if m.ChatID == "" {
		m.ChatID = st.chat.ID
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	st.messages = append(st.messages, m)
	st.touch()
	return m
}

// AppendConfirmedMessage inserts a server-confirmed message. A message with
// the same server id, or else the latest optimistic message it corresponds
// to, is replaced in place. Otherwise the message is appended.
func (st *State) AppendConfirmedMessage(m model.Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if i := st.matchLocked(m); i >= 0 {
		st.messages[i] = m
	} else {
		st.messages = append(st.messages, m)
	}
	if m.ID != "" {
		if len(m.Attachments) > 0 {
			st.attachments[m.ID] = append([]model.Attachment(nil), m.Attachments...)
		} else {
			delete(st.attachments, m.ID)
		}
	}
	st.touch()
}

func (st *State) matchLocked(m model.Message) int {
	if m.ID != "" {
		for i := range st.messages {
			if st.messages[i].ID == m.ID {
				return i
			}
		}
	}
	for i := len(st.messages) - 1; i >= 0; i-- {
		cand := st.messages[i]
		if cand.Persisted() {
			continue
		}
		if cand.ClientID != "" && m.ClientID != "" {
			if cand.ClientID == m.ClientID {
				return i
			}
			continue
		}
		if cand.Role == m.Role && cand.Content == m.Content {
			return i
		}
	}
	return -1
}

// SwitchChat replaces the active chat with one loaded by the caller and clears
// ephemeral state.
func (st *State) SwitchChat(chat model.Chat) error {
	return st.replace("switchChat", chat)
}

// Reset starts an empty, unsaved chat.
func (st *State) Reset() error {
	return st.replace("newChat", model.Chat{})
}

func (st *State) replace(op string, chat model.Chat) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.live != nil {
		return &ConflictError{Op: op, ChatID: st.live.chatID}
	}
	st.messages = append([]model.Message(nil), chat.Messages...)
	chat.Messages = nil
	st.chat = chat
	st.partial = nil
	st.attachments = map[string][]model.Attachment{}
	for _, m := range st.messages {
		if m.ID != "" && len(m.Attachments) > 0 {
			st.attachments[m.ID] = append([]model.Attachment(nil), m.Attachments...)
		}
	}
	st.touch()
	return nil
}

// AttachChat gives the active, unsaved chat its persisted identity without
// touching its messages.
func (st *State) AttachChat(chat model.Chat) {
	st.mu.Lock()
	defer st.mu.Unlock()
	chat.Messages = nil
	st.chat = chat
	for i := range st.messages {
		if st.messages[i].ChatID == "" {
			st.messages[i].ChatID = chat.ID
		}
	}
	st.touch()
}

// ChatID is the id of the active chat, empty while it is unsaved.
func (st *State) ChatID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.chat.ID
}

// Messages returns a copy of the active chat's messages in order.
func (st *State) Messages() []model.Message {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]model.Message(nil), st.messages...)
}

func (st *State) Attachments(messageID string) []model.Attachment {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]model.Attachment(nil), st.attachments[messageID]...)
}

func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	chat := st.chat
	chat.Messages = append([]model.Message{}, st.messages...)
	index := make(map[string][]model.Attachment, len(st.attachments))
	for id, atts := range st.attachments {
		index[id] = append([]model.Attachment(nil), atts...)
	}
	return Snapshot{
		Chat:        chat,
		Partial:     st.partialLocked(),
		Streaming:   st.live != nil,
		Attachments: index,
	}
}

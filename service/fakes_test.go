package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"streamchat/model"
	"streamchat/stream"
)

type memStore struct {
	mu          sync.Mutex
	chats       map[string]*model.Chat
	messages    []*model.Message
	attachments []*model.Attachment
	calls       int
	seq         int

	failChat        error
	failMessageRole model.Role
	failAttachment  func(*model.Attachment) error
}

func newMemStore() *memStore {
	return &memStore{chats: map[string]*model.Chat{}}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) CreateChat(_ context.Context, userID uint, title string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failChat != nil {
		return nil, s.failChat
	}
	c := &model.Chat{ID: s.nextID("chat"), UserID: userID, Title: title}
	s.chats[c.ID] = c
	out := *c
	out.Messages = []model.Message{}
	return &out, nil
}

func (s *memStore) GetChat(_ context.Context, userID uint, chatID string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, model.ErrChatNotFound
	}
	out := *c
	out.Messages = []model.Message{}
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out.Messages = append(out.Messages, s.withAttachments(*m))
		}
	}
	return &out, nil
}

func (s *memStore) ListChats(_ context.Context, userID uint) ([]model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []model.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memStore) DeleteChat(_ context.Context, userID uint, chatID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, model.ErrChatNotFound
	}
	delete(s.chats, chatID)
	var ids []string
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ChatID == chatID {
			ids = append(ids, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return ids, nil
}

func (s *memStore) CreateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failMessageRole != "" && msg.Role == s.failMessageRole {
		return errors.New("insert failed")
	}
	msg.ID = s.nextID("msg")
	cp := *msg
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *memStore) GetMessage(_ context.Context, messageID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, m := range s.messages {
		if m.ID == messageID {
			out := s.withAttachments(*m)
			return &out, nil
		}
	}
	return nil, model.ErrMessageNotFound
}

func (s *memStore) CreateAttachment(_ context.Context, a *model.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAttachment != nil {
		if err := s.failAttachment(a); err != nil {
			return err
		}
	}
	a.ID = s.nextID("att")
	cp := *a
	s.attachments = append(s.attachments, &cp)
	return nil
}

func (s *memStore) MessageOwnedBy(_ context.Context, userID uint, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, m := range s.messages {
		if m.ID != messageID {
			continue
		}
		c, ok := s.chats[m.ChatID]
		return ok && c.UserID == userID, nil
	}
	return false, nil
}

func (s *memStore) withAttachments(m model.Message) model.Message {
	m.Attachments = nil
	for _, a := range s.attachments {
		if a.MessageID == m.ID {
			m.Attachments = append(m.Attachments, *a)
		}
	}
	return m
}

func (s *memStore) storedMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memBucket struct {
	mu      sync.Mutex
	objects map[string]string
	deleted []string
	fail    map[string]error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string]string{}, fail: map[string]error{}}
}

func (b *memBucket) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[key]; err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.objects[key] = string(data)
	return nil
}

func (b *memBucket) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, prefix)
	for k := range b.objects {
		if strings.HasPrefix(k, prefix+"/") {
			delete(b.objects, k)
		}
	}
	return nil
}

func (b *memBucket) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func textFile(name, body string) FileUpload {
	return FileUpload{
		Name:        name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

// scriptedUpstream replays chunks and then ends with err.
type scriptedUpstream struct {
	chunks []string
	err    error
	idx    int
	cur    string
	done   bool
}

func (u *scriptedUpstream) Next() bool {
	if u.idx >= len(u.chunks) {
		u.done = true
		return false
	}
	u.cur = u.chunks[u.idx]
	u.idx++
	return true
}

func (u *scriptedUpstream) Text() string { return u.cur }

func (u *scriptedUpstream) Err() error {
	if u.done {
		return u.err
	}
	return nil
}

func (u *scriptedUpstream) Close() error { return nil }

// blockingUpstream emits first and then waits for its context to end.
type blockingUpstream struct {
	ctx   context.Context
	first string
	sent  bool
}

func (u *blockingUpstream) Next() bool {
	if !u.sent {
		u.sent = true
		return true
	}
	<-u.ctx.Done()
	return false
}

func (u *blockingUpstream) Text() string { return u.first }

func (u *blockingUpstream) Err() error { return u.ctx.Err() }

func (u *blockingUpstream) Close() error { return nil }

type fakeGenerator struct {
	mu       sync.Mutex
	prompts  [][]Turn
	chunks   []string
	err      error
	openErr  error
	blocking bool
}

func (g *fakeGenerator) Stream(ctx context.Context, turns []Turn) (*stream.Reader, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, turns)
	g.mu.Unlock()
	if g.openErr != nil {
		return nil, g.openErr
	}
	if g.blocking {
		return stream.NewReader(&blockingUpstream{ctx: ctx, first: "par"}, nil), nil
	}
	return stream.NewReader(&scriptedUpstream{chunks: g.chunks, err: g.err}, []string{"User:", "\nUser:"}), nil
}

type recordingSink struct {
	mu       sync.Mutex
	deltas   []string
	warnings []error
	started  chan struct{}
	once     sync.Once
	failWith error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{started: make(chan struct{})}
}

func (s *recordingSink) Delta(text string) error {
	s.mu.Lock()
	s.deltas = append(s.deltas, text)
	s.mu.Unlock()
	s.once.Do(func() { close(s.started) })
	return s.failWith
}

func (s *recordingSink) Warn(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, err)
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.deltas, "")
}

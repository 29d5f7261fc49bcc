package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"streamchat/conversation"
	"streamchat/lease"
	"streamchat/model"
	"streamchat/platform"
	"streamchat/stream"
)

const defaultChatTitle = "New Chat"

// Phase is where a client's current turn is.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingUserPersist
	PhaseStreaming
	PhaseFinalizingAssistant
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingUserPersist:
		return "awaiting_user_persist"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalizingAssistant:
		return "finalizing_assistant"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Client identifies whose conversation state a call operates on. UserID is
// zero for anonymous clients, which are keyed by AnonID instead.
type Client struct {
	UserID uint
	AnonID string
}

func (c Client) Authenticated() bool { return c.UserID != 0 }

func (c Client) Key() string {
	if c.Authenticated() {
		return fmt.Sprintf("user:%d", c.UserID)
	}
	return "anon:" + c.AnonID
}

type ChatStore interface {
	CreateChat(ctx context.Context, userID uint, title string) (*model.Chat, error)
	GetChat(ctx context.Context, userID uint, chatID string) (*model.Chat, error)
	ListChats(ctx context.Context, userID uint) ([]model.Chat, error)
	DeleteChat(ctx context.Context, userID uint, chatID string) ([]string, error)
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
}

// Generator opens a model stream for the given history.
type Generator interface {
	Stream(ctx context.Context, turns []Turn) (*stream.Reader, error)
}

type AttachmentUploader interface {
	UploadAll(ctx context.Context, messageID string, files []FileUpload) UploadReport
	Purge(ctx context.Context, messageIDs []string) error
}

// DeltaSink receives a turn's output as it happens. A Delta error cancels
// the turn.
type DeltaSink interface {
	Delta(text string) error
	Warn(err error)
}

type SubmitInput struct {
	Content  string
	ClientID string
	Files    []FileUpload
}

type TurnResult struct {
	ChatID      string
	UserMessage model.Message
	Assistant   model.Message
	Content     string
	Stopped     bool
	Uploads     *UploadReport
	Warnings    []error
}

// StateView is a client's conversation state together with its phase.
type StateView struct {
	Phase Phase `json:"phase"`
	conversation.Snapshot
}

// errEvicted is returned by beginTurn and beginManage on an entry the
// sweeper already dropped. Callers fetch a fresh entry and try again.
var errEvicted = errors.New("client state evicted")

type clientEntry struct {
	mu       sync.Mutex
	phase    Phase
	managing bool
	removed  bool
	state    *conversation.State
}

func (e *clientEntry) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

func (e *clientEntry) getPhase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *clientEntry) busyLocked() bool {
	return e.phase != PhaseIdle || e.managing
}

func (e *clientEntry) beginTurn(first Phase) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return errEvicted
	}
	if e.busyLocked() {
		return &conversation.ConflictError{Op: "submit", ChatID: e.state.ChatID()}
	}
	e.phase = first
	return nil
}

func (e *clientEntry) beginManage(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return errEvicted
	}
	if e.busyLocked() {
		return &conversation.ConflictError{Op: op, ChatID: e.state.ChatID()}
	}
	e.managing = true
	return nil
}

func (e *clientEntry) endManage() {
	e.mu.Lock()
	e.managing = false
	e.mu.Unlock()
}

type ChatServiceDeps struct {
	Store     ChatStore
	Generator Generator
	Uploader  AttachmentUploader
	Locker    lease.Locker
	LeaseTTL  time.Duration
}

// ChatService drives conversation turns for every connected client. Each
// client has its own conversation.State and at most one turn in flight.
type ChatService struct {
	store    ChatStore
	gen      Generator
	uploads  AttachmentUploader
	locker   lease.Locker
	leaseTTL time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	clients map[string]*clientEntry

	bg conc.WaitGroup
}

func NewChatService(deps ChatServiceDeps) *ChatService {
	locker := deps.Locker
	if locker == nil {
		locker = lease.NewMemoryLocker()
	}
	ttl := deps.LeaseTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ChatService{
		store:    deps.Store,
		gen:      deps.Generator,
		uploads:  deps.Uploader,
		locker:   locker,
		leaseTTL: ttl,
		log:      platform.Logger.WithField("component", "chat"),
		clients:  map[string]*clientEntry{},
	}
}

func (s *ChatService) entry(c Client) *clientEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.Key()
	e, ok := s.clients[key]
	if !ok {
		e = &clientEntry{state: conversation.New()}
		s.clients[key] = e
	}
	return e
}

// claim returns the registered entry of c once begin has succeeded on it.
func (s *ChatService) claim(c Client, begin func(*clientEntry) error) (*clientEntry, error) {
	for {
		e := s.entry(c)
		err := begin(e)
		if errors.Is(err, errEvicted) {
			continue
		}
		return e, err
	}
}

func (s *ChatService) lookup(c Client) *clientEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[c.Key()]
}

type nopSink struct{}

func (nopSink) Delta(string) error { return nil }
func (nopSink) Warn(error)         {}

// Submit runs one turn: the user message is added locally, persisted with its
// attachments when the client is signed in, and the reply is streamed into
// sink and the conversation state. Persistence failures are reported as
// warnings and never stop the turn.
func (s *ChatService) Submit(ctx context.Context, client Client, in SubmitInput, sink DeltaSink) (*TurnResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyInput
	}
	if sink == nil {
		sink = nopSink{}
	}
	first := PhaseStreaming
	if client.Authenticated() {
		first = PhaseAwaitingUserPersist
	}
	e, err := s.claim(client, func(e *clientEntry) error { return e.beginTurn(first) })
	if err != nil {
		return nil, err
	}
	defer e.setPhase(PhaseIdle)

	held, err := s.locker.Acquire(ctx, client.Key(), s.leaseTTL)
	switch {
	case errors.Is(err, lease.ErrHeld):
		return nil, &conversation.ConflictError{Op: "submit", ChatID: e.state.ChatID()}
	case err != nil:
		s.log.Warnf("[%s] stream lease unavailable, continuing without it: %s", client.Key(), err)
	default:
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warnf("[%s] %s", client.Key(), err)
			}
		}()
	}

	res := &TurnResult{}
	warn := func(err error) {
		s.log.Warnf("[%s] %s", client.Key(), err)
		res.Warnings = append(res.Warnings, err)
		sink.Warn(err)
	}

	user := e.state.AppendOptimistic(model.Message{Role: model.RoleUser, Content: in.Content, ClientID: in.ClientID})
	res.UserMessage = user
	if client.Authenticated() {
		s.persistUser(ctx, client, e, user, in.Files, res, warn)
	} else if len(in.Files) > 0 {
		warn(&UploadError{FileName: in.Files[0].Name, Err: fmt.Errorf("attachments need a signed-in user: %w", ErrUnauthenticated)})
	}
	res.ChatID = e.state.ChatID()

	e.setPhase(PhaseStreaming)
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	session, err := e.state.BeginStream(res.ChatID, cancel)
	if err != nil {
		return res, err
	}
	reader, err := s.gen.Stream(streamCtx, TurnsFrom(e.state.Messages()))
	if err != nil {
		e.state.CancelStream(session)
		if !stream.IsTransportError(err) {
			err = &stream.TransportError{Err: err}
		}
		return res, err
	}
	defer reader.Close()

	for reader.Next() {
		delta := reader.Delta()
		if !e.state.AppendDelta(session, delta) {
			break
		}
		if err := sink.Delta(delta); err != nil {
			s.log.Infof("[%s] client went away: %s", client.Key(), err)
			e.state.CancelStream(session)
			break
		}
	}
	res.Content = session.Content()
	if session.Cancelled() {
		return res, ErrTurnCancelled
	}
	if err := reader.Err(); err != nil {
		e.state.CancelStream(session)
		return res, err
	}

	e.setPhase(PhaseFinalizingAssistant)
	reply, ok := e.state.FinalizeStream(session)
	if !ok {
		return res, ErrTurnCancelled
	}
	res.Assistant = reply
	res.Content = reply.Content
	res.Stopped = reader.Stopped()

	if client.Authenticated() && res.ChatID != "" {
		persisted := reply
		persisted.ChatID = res.ChatID
		if err := s.store.CreateMessage(context.WithoutCancel(ctx), &persisted); err != nil {
			warn(&PersistenceError{Op: "assistant message", Err: err})
		} else {
			e.state.AppendConfirmedMessage(persisted)
			res.Assistant = persisted
		}
	}
	return res, nil
}

func (s *ChatService) persistUser(ctx context.Context, client Client, e *clientEntry, optimistic model.Message, files []FileUpload, res *TurnResult, warn func(error)) {
	chatID, err := s.ensureChat(ctx, client, e)
	if err != nil {
		warn(&PersistenceError{Op: "chat", Err: err})
		return
	}
	msg := model.Message{
		ChatID:   chatID,
		ClientID: optimistic.ClientID,
		Role:     model.RoleUser,
		Content:  optimistic.Content,
	}
	if err := s.store.CreateMessage(ctx, &msg); err != nil {
		warn(&PersistenceError{Op: "user message", Err: err})
		return
	}
	if len(files) > 0 && s.uploads != nil {
		report := s.uploads.UploadAll(ctx, msg.ID, files)
		res.Uploads = &report
		for _, f := range report.Failures {
			warn(f.Err)
		}
		reloaded, err := s.store.GetMessage(ctx, msg.ID)
		if err != nil {
			warn(&PersistenceError{Op: "reload message", Err: err})
			msg.Attachments = report.Attachments
		} else {
			msg = *reloaded
		}
	}
	e.state.AppendConfirmedMessage(msg)
	res.UserMessage = msg
}

// ensureChat returns the active chat id, creating a chat on first use.
func (s *ChatService) ensureChat(ctx context.Context, client Client, e *clientEntry) (string, error) {
	if id := e.state.ChatID(); id != "" {
		return id, nil
	}
	chat, err := s.store.CreateChat(ctx, client.UserID, defaultChatTitle)
	if err != nil {
		return "", err
	}
	e.state.AttachChat(*chat)
	return chat.ID, nil
}

// Cancel stops the client's in-flight turn and closes its upstream.
func (s *ChatService) Cancel(client Client) bool {
	e := s.lookup(client)
	if e == nil {
		return false
	}
	return e.state.CancelLive()
}

// NewChat starts an empty chat. For signed-in users it is created in the
// store; when that fails the chat stays local and is created on first submit.
func (s *ChatService) NewChat(ctx context.Context, client Client, title string) (*model.Chat, error) {
	e, err := s.claim(client, func(e *clientEntry) error { return e.beginManage("newChat") })
	if err != nil {
		return nil, err
	}
	defer e.endManage()

	if title == "" {
		title = defaultChatTitle
	}
	if client.Authenticated() {
		chat, err := s.store.CreateChat(ctx, client.UserID, title)
		if err == nil {
			if err := e.state.SwitchChat(*chat); err != nil {
				return nil, err
			}
			return chat, nil
		}
		s.log.Warnf("[%s] %s", client.Key(), &PersistenceError{Op: "chat", Err: err})
	}
	if err := e.state.Reset(); err != nil {
		return nil, err
	}
	return &model.Chat{Title: title, Messages: []model.Message{}}, nil
}

// SwitchChat makes a stored chat the active one.
func (s *ChatService) SwitchChat(ctx context.Context, client Client, chatID string) (*model.Chat, error) {
	if !client.Authenticated() {
		return nil, ErrUnauthenticated
	}
	e, err := s.claim(client, func(e *clientEntry) error { return e.beginManage("switchChat") })
	if err != nil {
		return nil, err
	}
	defer e.endManage()

	chat, err := s.store.GetChat(ctx, client.UserID, chatID)
	if err != nil {
		return nil, err
	}
	if err := e.state.SwitchChat(*chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// DeleteChat removes a stored chat. Deleting the active chat leaves the
// client with an empty one. Stored attachment files are removed in the
// background.
func (s *ChatService) DeleteChat(ctx context.Context, client Client, chatID string) error {
	if !client.Authenticated() {
		return ErrUnauthenticated
	}
	e, err := s.claim(client, func(e *clientEntry) error { return e.beginManage("deleteChat") })
	if err != nil {
		return err
	}
	defer e.endManage()

	messageIDs, err := s.store.DeleteChat(ctx, client.UserID, chatID)
	if err != nil {
		return err
	}
	if e.state.ChatID() == chatID {
		if err := e.state.Reset(); err != nil {
			return err
		}
	}
	if len(messageIDs) > 0 && s.uploads != nil {
		s.bg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.uploads.Purge(ctx, messageIDs); err != nil {
				s.log.Warnf("[%s] purge attachments of chat %s: %s", client.Key(), chatID, err)
			}
		})
	}
	return nil
}

// Chats lists the user's chats, newest first.
func (s *ChatService) Chats(ctx context.Context, client Client) ([]model.Chat, error) {
	if !client.Authenticated() {
		return nil, ErrUnauthenticated
	}
	return s.store.ListChats(ctx, client.UserID)
}

// Transcript renders a stored chat as HTML.
func (s *ChatService) Transcript(ctx context.Context, client Client, chatID string) ([]byte, error) {
	if !client.Authenticated() {
		return nil, ErrUnauthenticated
	}
	chat, err := s.store.GetChat(ctx, client.UserID, chatID)
	if err != nil {
		return nil, err
	}
	return RenderTranscript(chat)
}

func (s *ChatService) Snapshot(client Client) StateView {
	e := s.entry(client)
	return StateView{Phase: e.getPhase(), Snapshot: e.state.Snapshot()}
}

// Sweep drops client states that are idle and untouched for longer than
// idle. It returns the number of states dropped.
func (s *ChatService) Sweep(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, e := range s.clients {
		e.mu.Lock()
		if !e.busyLocked() && e.state.Live() == nil && now.Sub(e.state.Touched()) > idle {
			e.removed = true
			delete(s.clients, key)
			dropped++
		}
		e.mu.Unlock()
	}
	return dropped
}

// Shutdown cancels every live stream and waits for background work.
func (s *ChatService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, e := range s.clients {
		e.state.CancelLive()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

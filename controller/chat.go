package controller

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamchat/service"
)

type ChatController struct {
	chats *service.ChatService
}

func NewChatController(chats *service.ChatService) *ChatController {
	return &ChatController{chats: chats}
}

// sseSink writes a turn to the response as server-sent events. Headers are
// committed by the first event.
type sseSink struct {
	c       *gin.Context
	started bool
}

func (s *sseSink) begin() {
	if s.started {
		return
	}
	s.started = true
	w := s.c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func (s *sseSink) event(name string, data any) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	s.begin()
	s.c.SSEvent(name, data)
	s.c.Writer.Flush()
	if err := s.c.Errors.Last(); err != nil {
		return err.Err
	}
	return nil
}

func (s *sseSink) Delta(text string) error {
	return s.event("delta", gin.H{"text": text})
}

func (s *sseSink) Warn(err error) {
	_ = s.event("warning", gin.H{"error": err.Error()})
}

func (ch *ChatController) runTurn(c *gin.Context, in service.SubmitInput) {
	client := clientFrom(c)
	requestID := c.GetString("requestId")
	logger.Infof("[%s] Handling chat turn for %s", requestID, client.Key())

	sink := &sseSink{c: c}
	res, err := ch.chats.Submit(c.Request.Context(), client, in, sink)
	if err != nil {
		logger.Warnf("[%s] Chat turn for %s ended: %s", requestID, client.Key(), err)
		if !sink.started {
			abortWithError(c, err)
			return
		}
		_, msg := statusFor(err)
		content := ""
		if res != nil {
			content = res.Content
		}
		_ = sink.event("error", gin.H{"error": msg, "content": content})
		return
	}

	done := gin.H{
		"content": res.Content,
		"stopped": res.Stopped,
	}
	if res.ChatID != "" {
		done["chatId"] = res.ChatID
	}
	if res.Assistant.ID != "" {
		done["messageId"] = res.Assistant.ID
	}
	if res.UserMessage.ID != "" {
		done["userMessage"] = res.UserMessage
	}
	if res.Uploads != nil {
		done["failedUploads"] = len(res.Uploads.Failures)
	}
	_ = sink.event("done", done)
	logger.Infof("[%s] Chat turn for %s finished, %d bytes", requestID, client.Key(), len(res.Content))
}

// Chat handles a JSON turn: {"content": "...", "clientId": "..."}.
func (ch *ChatController) Chat(c *gin.Context) {
	var input struct {
		Content  string `json:"content" binding:"required"`
		ClientID string `json:"clientId"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ch.runTurn(c, service.SubmitInput{Content: input.Content, ClientID: input.ClientID})
}

// Submit handles a multipart turn with optional files[].
func (ch *ChatController) Submit(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		logger.Warnf("[%s] Invalid form, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	in := service.SubmitInput{
		Content:  c.PostForm("content"),
		ClientID: c.PostForm("clientId"),
	}
	for _, fh := range form.File["files"] {
		in.Files = append(in.Files, fileUpload(fh))
	}
	ch.runTurn(c, in)
}

func fileUpload(fh *multipart.FileHeader) service.FileUpload {
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return service.FileUpload{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (ch *ChatController) Cancel(c *gin.Context) {
	client := clientFrom(c)
	if ch.chats.Cancel(client) {
		logger.Infof("[%s] Cancelled turn for %s", c.GetString("requestId"), client.Key())
	}
	c.Status(http.StatusNoContent)
}

func (ch *ChatController) State(c *gin.Context) {
	c.JSON(http.StatusOK, ch.chats.Snapshot(clientFrom(c)))
}

// List returns the user's chats, newest first.
func (ch *ChatController) List(c *gin.Context) {
	chats, err := ch.chats.Chats(c.Request.Context(), clientFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (ch *ChatController) Create(c *gin.Context) {
	var input struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	chat, err := ch.chats.NewChat(c.Request.Context(), clientFrom(c), input.Title)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (ch *ChatController) Select(c *gin.Context) {
	chat, err := ch.chats.SwitchChat(c.Request.Context(), clientFrom(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (ch *ChatController) Delete(c *gin.Context) {
	if err := ch.chats.DeleteChat(c.Request.Context(), clientFrom(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ch *ChatController) Transcript(c *gin.Context) {
	html, err := ch.chats.Transcript(c.Request.Context(), clientFrom(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

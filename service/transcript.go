package service

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"

	"streamchat/model"
)

var markdown = goldmark.New()

// RenderTranscript renders a chat as HTML, converting each message body from
// markdown.
func RenderTranscript(chat *model.Chat) ([]byte, error) {
	var buf bytes.Buffer
	title := chat.Title
	if title == "" {
		title = "New Chat"
	}
	fmt.Fprintf(&buf, "<article class=\"chat\">\n<h1>%s</h1>\n", html.EscapeString(title))
	for _, m := range chat.Messages {
		fmt.Fprintf(&buf, "<section class=\"message %s\">\n", m.Role)
		if err := markdown.Convert([]byte(m.Content), &buf); err != nil {
			return nil, fmt.Errorf("render message %s: %w", m.ID, err)
		}
		if len(m.Attachments) > 0 {
			buf.WriteString("<ul class=\"attachments\">\n")
			for _, a := range m.Attachments {
				fmt.Fprintf(&buf, "<li><a href=\"%s\">%s</a></li>\n",
					html.EscapeString(a.FileURL), html.EscapeString(a.FileName))
			}
			buf.WriteString("</ul>\n")
		}
		buf.WriteString("</section>\n")
	}
	buf.WriteString("</article>\n")
	return buf.Bytes(), nil
}

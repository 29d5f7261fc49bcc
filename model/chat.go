package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Chat is a conversation owned by one authenticated user. ID is empty until
// the chat has been persisted.
type Chat struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id,omitempty"`
	UserID    uint      `gorm:"index:idx_chats_user_id_created_at" json:"user_id,omitempty"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Messages  []Message `gorm:"foreignKey:ChatID" json:"messages"`
	CreatedAt time.Time `gorm:"index:idx_chats_user_id_created_at" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Message content is append-only while it streams and immutable afterwards.
// A message without an ID is optimistic: it exists only in memory.
type Message struct {
	ID          string       `gorm:"type:varchar(36);primaryKey" json:"id,omitempty"`
	ChatID      string       `gorm:"type:varchar(36);index:idx_messages_chat_id_created_at" json:"chat_id,omitempty"`
	ClientID    string       `gorm:"type:varchar(36);index" json:"client_id,omitempty"`
	Role        Role         `gorm:"type:varchar(16)" json:"role"`
	Content     string       `gorm:"type:text" json:"content"`
	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
	CreatedAt   time.Time    `gorm:"index:idx_messages_chat_id_created_at" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Persisted reports whether the message carries a server identity.
func (m Message) Persisted() bool {
	return m.ID != ""
}

type Attachment struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	MessageID string    `gorm:"type:varchar(36);index" json:"message_id"`
	FileName  string    `gorm:"type:varchar(255)" json:"file_name"`
	FileType  string    `gorm:"type:varchar(255)" json:"file_type"`
	FileSize  int64     `json:"file_size"`
	FileURL   string    `gorm:"type:text" json:"file_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

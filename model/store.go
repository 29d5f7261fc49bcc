package model

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Store is the relational persistence gateway for chats, messages,
// attachments and users.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func orderByCreated(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

func (s *Store) CreateChat(ctx context.Context, userID uint, title string) (*Chat, error) {
	chat := &Chat{UserID: userID, Title: title}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(chat).Error; err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	chat.Messages = []Message{}
	return chat, nil
}

// GetChat loads a chat owned by userID with its messages and their attachments.
func (s *Store) GetChat(ctx context.Context, userID uint, chatID string) (*Chat, error) {
	var chat Chat
	err := s.db.WithContext(ctx).
		Preload("Messages", orderByCreated).
		Preload("Messages.Attachments", orderByCreated).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &chat, nil
}

// ListChats returns the user's chats, newest first.
func (s *Store) ListChats(ctx context.Context, userID uint) ([]Chat, error) {
	var chats []Chat
	err := s.db.WithContext(ctx).
		Preload("Messages", orderByCreated).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes the chat with its messages and attachment records and
// returns the ids of the deleted messages.
func (s *Store) DeleteChat(ctx context.Context, userID uint, chatID string) ([]string, error) {
	var messageIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Chat{}).Where("id = ? AND user_id = ?", chatID, userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrChatNotFound
		}
		if err := tx.Model(&Message{}).Where("chat_id = ?", chatID).Pluck("id", &messageIDs).Error; err != nil {
			return err
		}
		if len(messageIDs) > 0 {
			if err := tx.Where("message_id IN ?", messageIDs).Delete(&Attachment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("chat_id = ?", chatID).Delete(&Message{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", chatID).Delete(&Chat{}).Error
	})
	if err != nil {
		if errors.Is(err, ErrChatNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete chat: %w", err)
	}
	return messageIDs, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetMessage loads a message together with its attachments.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg Message
	err := s.db.WithContext(ctx).
		Preload("Attachments", orderByCreated).
		Where("id = ?", messageID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &msg, nil
}

// MessageOwnedBy reports whether the message exists in one of the user's chats.
func (s *Store) MessageOwnedBy(ctx context.Context, userID uint, messageID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("messages.id = ? AND chats.user_id = ?", messageID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("database query failed: %w", err)
	}
	return count > 0, nil
}

func (s *Store) CreateAttachment(ctx context.Context, attachment *Attachment) error {
	if err := s.db.WithContext(ctx).Create(attachment).Error; err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &user, nil
}

func (s *Store) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

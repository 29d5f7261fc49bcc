package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"streamchat/model"
	"streamchat/platform"
)

// UserStore is the part of model.Store the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
}

type UserService struct {
	store  UserStore
	tokens *TokenService
	log    *logrus.Entry
}

func NewUserService(store UserStore, tokens *TokenService) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		log:    platform.Logger.WithField("component", "user"),
	}
}

type User struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

func (service *UserService) Register(ctx context.Context, user *User) error {
	// 唯一性检查
	exists, err := service.store.UserExists(ctx, user.Username, user.Email)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if exists {
		return ErrUserExists
	}

	if !passwordStrong(user.Password) {
		return ErrWeakPassword
	}

	// 密码加密
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// 存储用户信息
	newUser := &model.User{
		Username: user.Username,
		Email:    user.Email,
		Password: string(hashedPassword),
	}
	return service.store.CreateUser(ctx, newUser)
}

func (service *UserService) Login(ctx context.Context, user *User) (string, error) {
	// 验证用户名和密码
	registeredUser, err := service.store.GetUserByUsername(ctx, user.Username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return "", ErrInvalidLogin
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(registeredUser.Password), []byte(user.Password)); err != nil {
		return "", ErrInvalidLogin
	}

	// 生成会话令牌
	token, err := service.tokens.CreateToken(registeredUser.ID, registeredUser.Username)
	if err != nil {
		service.log.Warnf("error generating token: %v", err)
		return "", errors.New("failed to generate token")
	}

	return token.AccessToken, nil
}

// Refresh issues a fresh token for an already verified identity.
func (service *UserService) Refresh(details *AccessDetails) (string, error) {
	token, err := service.tokens.CreateToken(details.UserID, details.UserName)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token.AccessToken, nil
}

package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamchat/service"
)

// UserController ...
type UserController struct {
	users *service.UserService
}

func NewUserController(users *service.UserService) *UserController {
	return &UserController{users: users}
}

func (ctrl *UserController) Register(c *gin.Context) {
	logger.Infof("[%s] Handling user registration request", c.GetString("requestId"))

	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	user := &service.User{
		Username: input.Username,
		Password: input.Password,
		Email:    input.Email,
	}
	if err := ctrl.users.Register(c.Request.Context(), user); err != nil {
		logger.Warnf("[%s] Failed to register user %s: %s", c.GetString("requestId"), user.Username, err)
		switch {
		case errors.Is(err, service.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
			return
		case errors.Is(err, service.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	logger.Infof("[%s] User %s registered successfully", c.GetString("requestId"), user.Username)
	c.JSON(http.StatusOK, gin.H{"message": "User registered successfully"})
}

func (ctrl *UserController) Login(c *gin.Context) {
	logger.Infof("[%s] Handling user login request", c.GetString("requestId"))

	var loginRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&loginRequest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	token, err := ctrl.users.Login(c.Request.Context(), &service.User{
		Username: loginRequest.Username,
		Password: loginRequest.Password,
	})
	if err != nil {
		logger.Warnf("[%s] User %s failed to login: %s", c.GetString("requestId"), loginRequest.Username, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	logger.Infof("[%s] User %s login successfully", c.GetString("requestId"), loginRequest.Username)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"streamchat/platform"
	"streamchat/service"
)

var logger = platform.Logger

const clientIDHeader = "X-Client-Id"

// AuthController ...
type AuthController struct {
	tokens *service.TokenService
	users  *service.UserService
}

func NewAuthController(tokens *service.TokenService, users *service.UserService) *AuthController {
	return &AuthController{tokens: tokens, users: users}
}

// TokenValid ...
func (a *AuthController) TokenValid(c *gin.Context) {
	tokenAuth, err := a.tokens.ExtractTokenMetadata(c.Request)
	if err != nil {
		//Token either expired or not valid
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please login first"})
		return
	}
	c.Set("UserId", tokenAuth.UserID)
	c.Set("UserName", tokenAuth.UserName)
	c.Set("auth", tokenAuth)
}

// TokenAuthMiddleware ...
// JWT Authentication middleware attached to each request that needs to be authenitcated to
// validate the access_token in the header
func (a *AuthController) TokenAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.TokenValid(c)
		c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous requests through. A request that
// does carry a token must carry a valid one.
func (a *AuthController) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.tokens.ExtractToken(c.Request) != "" {
			a.TokenValid(c)
		}
		c.Next()
	}
}

// clientFrom identifies the caller. Anonymous callers are keyed by the
// X-Client-Id header; one is issued when missing.
func clientFrom(c *gin.Context) service.Client {
	if id, ok := c.Get("UserId"); ok {
		if uid, ok := id.(uint); ok && uid != 0 {
			return service.Client{UserID: uid}
		}
	}
	anon := c.GetHeader(clientIDHeader)
	if _, err := uuid.Parse(anon); err != nil {
		anon = uuid.NewString()
	}
	c.Header(clientIDHeader, anon)
	return service.Client{AnonID: anon}
}

// Refresh ...
func (a *AuthController) Refresh(c *gin.Context) {
	details, err := a.tokens.ExtractTokenMetadata(c.Request)
	//if there is an error, the token must have expired
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization, please login again"})
		return
	}
	token, err := a.users.Refresh(details)
	if err != nil {
		logger.Warnf("[%s] Failed to refresh token: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusForbidden, gin.H{"message": "Invalid authorization, please login again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

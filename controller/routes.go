package controller

import "github.com/gin-gonic/gin"

type Handlers struct {
	Auth   *AuthController
	Users  *UserController
	Chat   *ChatController
	Upload *UploadController
}

func (h Handlers) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	{
		v1.POST("/user/register", h.Users.Register)
		v1.POST("/user/login", h.Users.Login)

		//Refresh the token
		v1.POST("/token/refresh", h.Auth.Refresh)

		// Turns work for anonymous clients too
		turn := v1.Group("/chat", h.Auth.OptionalAuthMiddleware())
		turn.POST("", h.Chat.Chat)
		turn.POST("/submit", h.Chat.Submit)
		turn.POST("/cancel", h.Chat.Cancel)
		turn.GET("/state", h.Chat.State)

		chats := v1.Group("/chats", h.Auth.TokenAuthMiddleware())
		chats.GET("", h.Chat.List)
		chats.POST("", h.Chat.Create)
		chats.POST("/:id/select", h.Chat.Select)
		chats.DELETE("/:id", h.Chat.Delete)
		chats.GET("/:id/transcript", h.Chat.Transcript)

		v1.POST("/upload", h.Auth.TokenAuthMiddleware(), h.Upload.Upload)
	}
}

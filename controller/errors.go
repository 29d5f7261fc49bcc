package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamchat/conversation"
	"streamchat/model"
	"streamchat/service"
	"streamchat/stream"
)

// statusClientClosedRequest is nginx's code for a request the client ended.
const statusClientClosedRequest = 499

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrConflict):
		return http.StatusConflict, "A response is still streaming"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "Please login first"
	case errors.Is(err, service.ErrEmptyInput):
		return http.StatusBadRequest, "Message content is required"
	case errors.Is(err, model.ErrChatNotFound):
		return http.StatusNotFound, "Chat not found"
	case errors.Is(err, model.ErrMessageNotFound):
		return http.StatusNotFound, "Message not found"
	case errors.Is(err, service.ErrTurnCancelled):
		return statusClientClosedRequest, "Turn cancelled"
	case stream.IsTransportError(err):
		return http.StatusBadGateway, "Model stream failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Warnf("[%s] %s", c.GetString("requestId"), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"streamchat/model"
	"streamchat/service"
)

type UploadController struct {
	uploader *service.Uploader
}

func NewUploadController(uploader *service.Uploader) *UploadController {
	return &UploadController{uploader: uploader}
}

// Upload stores one file for a message of the caller's chats and returns its
// attachment.
func (u *UploadController) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	messageID := c.PostForm("messageId")
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messageId is required"})
		return
	}

	client := clientFrom(c)
	att, err := u.uploader.UploadFor(c.Request.Context(), client.UserID, messageID, fileUpload(fh))
	if err != nil {
		if errors.Is(err, model.ErrMessageNotFound) {
			logger.Warnf("[%s] User %d uploaded to unknown message %s", c.GetString("requestId"), client.UserID, messageID)
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		logger.Warnf("[%s] Upload error: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}
	c.JSON(http.StatusOK, att)
}

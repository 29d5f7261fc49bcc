package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/model"
	"streamchat/storage"
)

func TestUploadAllPartialFailure(t *testing.T) {
	store := newMemStore()
	bucket := newMemBucket()
	bucket.fail["m1/b.png"] = errors.New("quota exceeded")
	u := NewUploader(bucket, store)

	report := u.UploadAll(context.Background(), "m1", []FileUpload{
		textFile("a.png", "1"),
		textFile("b.png", "2"),
		textFile("c.png", "3"),
	})

	require.Len(t, report.Attachments, 2)
	assert.Equal(t, "a.png", report.Attachments[0].FileName)
	assert.Equal(t, "c.png", report.Attachments[1].FileName)
	assert.Equal(t, "https://cdn.test/m1/a.png", report.Attachments[0].FileURL)
	assert.Equal(t, "m1", report.Attachments[0].MessageID)
	assert.Equal(t, int64(1), report.Attachments[0].FileSize)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Index)
	assert.Equal(t, "b.png", report.Failures[0].FileName)
	assert.ErrorContains(t, report.Failures[0].Err, "quota exceeded")

	assert.Len(t, store.attachments, 2)
	assert.Equal(t, "1", bucket.objects["m1/a.png"])
}

func TestUploadOpenFailure(t *testing.T) {
	u := NewUploader(newMemBucket(), newMemStore())
	_, err := u.Upload(context.Background(), "m1", FileUpload{
		Name: "x.txt",
		Open: func() (io.ReadCloser, error) { return nil, errors.New("gone") },
	})
	require.NotNil(t, err)
	assert.Equal(t, "x.txt", err.FileName)
}

func TestUploadKeyUsesBaseName(t *testing.T) {
	bucket := newMemBucket()
	u := NewUploader(bucket, newMemStore())
	att, err := u.Upload(context.Background(), "m1", textFile("../../secret.txt", "s"))
	require.Nil(t, err)
	assert.Equal(t, "https://cdn.test/m1/secret.txt", att.FileURL)
	assert.Equal(t, "../../secret.txt", att.FileName)
}

func TestUploadRejectsEmptyFileName(t *testing.T) {
	bucket := newMemBucket()
	store := newMemStore()
	u := NewUploader(bucket, store)

	_, err := u.Upload(context.Background(), "m1", textFile("", "x"))
	require.NotNil(t, err)
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
	assert.Empty(t, bucket.objects)
	assert.Empty(t, store.attachments)
}

func TestUploadForChecksOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	bucket := newMemBucket()
	u := NewUploader(bucket, store)

	chat, err := store.CreateChat(ctx, 1, "New Chat")
	require.NoError(t, err)
	msg := &model.Message{ChatID: chat.ID, Role: model.RoleUser, Content: "Hello"}
	require.NoError(t, store.CreateMessage(ctx, msg))

	_, err = u.UploadFor(ctx, 2, msg.ID, textFile("evil.txt", "x"))
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
	_, err = u.UploadFor(ctx, 1, "does-not-exist", textFile("a.txt", "x"))
	assert.ErrorIs(t, err, model.ErrMessageNotFound)
	assert.Empty(t, bucket.objects)
	assert.Empty(t, store.attachments)

	att, err := u.UploadFor(ctx, 1, msg.ID, textFile("a.txt", "x"))
	require.NoError(t, err)
	assert.Equal(t, msg.ID, att.MessageID)
	assert.Equal(t, "x", bucket.objects[msg.ID+"/a.txt"])
}

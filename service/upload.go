package service

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"streamchat/model"
	"streamchat/platform"
	"streamchat/storage"
)

// FileUpload is one file of a submission.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type UploadFailure struct {
	Index    int
	FileName string
	Err      *UploadError
}

// UploadReport lists the attachments created and the files that failed.
// Successful uploads are never rolled back.
type UploadReport struct {
	Attachments []model.Attachment
	Failures    []UploadFailure
}

type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment *model.Attachment) error
	MessageOwnedBy(ctx context.Context, userID uint, messageID string) (bool, error)
}

// Uploader stores attachment files in a bucket under {messageID}/{fileName}
// and records them. UploadAll and Upload trust the caller with messageID,
// UploadFor checks it against the requesting user first.
type Uploader struct {
	bucket storage.Bucket
	store  AttachmentStore
	log    *logrus.Entry
}

func NewUploader(bucket storage.Bucket, store AttachmentStore) *Uploader {
	return &Uploader{
		bucket: bucket,
		store:  store,
		log:    platform.Logger.WithField("component", "uploader"),
	}
}

// UploadAll uploads files one after another. A failure is recorded and the
// remaining files are still attempted.
func (u *Uploader) UploadAll(ctx context.Context, messageID string, files []FileUpload) UploadReport {
	var report UploadReport
	for i, f := range files {
		att, err := u.Upload(ctx, messageID, f)
		if err != nil {
			u.log.Warnf("[%s] %s", messageID, err)
			report.Failures = append(report.Failures, UploadFailure{Index: i, FileName: f.Name, Err: err})
			continue
		}
		report.Attachments = append(report.Attachments, *att)
	}
	return report
}

func (u *Uploader) Upload(ctx context.Context, messageID string, f FileUpload) (*model.Attachment, *UploadError) {
	fail := func(err error) *UploadError {
		return &UploadError{FileName: f.Name, Err: err}
	}
	if f.Open == nil {
		return nil, fail(fmt.Errorf("no content"))
	}
	key, err := storage.ObjectKey(messageID, f.Name)
	if err != nil {
		return nil, fail(err)
	}
	body, err := f.Open()
	if err != nil {
		return nil, fail(fmt.Errorf("open: %w", err))
	}
	defer body.Close()

	if err := u.bucket.Upload(ctx, key, body, f.ContentType); err != nil {
		return nil, fail(fmt.Errorf("store object: %w", err))
	}

	att := &model.Attachment{
		MessageID: messageID,
		FileName:  f.Name,
		FileType:  f.ContentType,
		FileSize:  f.Size,
		FileURL:   u.bucket.PublicURL(key),
	}
	if err := u.store.CreateAttachment(ctx, att); err != nil {
		return nil, fail(fmt.Errorf("record attachment: %w", err))
	}
	return att, nil
}

// UploadFor stores one file for a message of the user's own chats. A missing
// message and a message of another user both give model.ErrMessageNotFound,
// and nothing is written to the bucket.
func (u *Uploader) UploadFor(ctx context.Context, userID uint, messageID string, f FileUpload) (*model.Attachment, error) {
	owned, err := u.store.MessageOwnedBy(ctx, userID, messageID)
	if err != nil {
		return nil, &UploadError{FileName: f.Name, Err: err}
	}
	if !owned {
		return nil, model.ErrMessageNotFound
	}
	att, uerr := u.Upload(ctx, messageID, f)
	if uerr != nil {
		return nil, uerr
	}
	return att, nil
}

// Purge removes the stored files of the given messages.
func (u *Uploader) Purge(ctx context.Context, messageIDs []string) error {
	var firstErr error
	for _, id := range messageIDs {
		if err := u.bucket.DeletePrefix(ctx, id); err != nil {
			u.log.Warnf("[%s] failed to delete attachments: %s", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

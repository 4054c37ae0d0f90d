package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"plancore/internal/blob"
	"plancore/pkg/domain"
)

// newAttachmentSuffix returns a random path segment so identical file names
// never collide under one task.
func newAttachmentSuffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// AddAttachment streams the payload into blob storage and records the
// attachment against the task. If recording fails the payload is deleted
// again; a failed cleanup logs the orphaned key for reconciliation.
func (s *Service) AddAttachment(ctx context.Context, taskID, fileName, contentType string, body io.Reader, uploadedBy PartyRef) (Attachment, Result, error) {
	start := s.nowFn()
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		err := domain.ValidationError{Field: "file_name", Reason: "required"}
		s.observe("attachment.add", start, err, Result{})
		return Attachment{}, Result{}, err
	}
	task, ok := s.store.GetTask(taskID)
	if !ok {
		err := domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		s.observe("attachment.add", start, err, Result{})
		return Attachment{}, Result{}, err
	}

	key := "attachments/" + task.ProjectID + "/" + taskID + "/" + newAttachmentSuffix() + "/" + fileName
	info, err := s.blobs.Put(ctx, key, body, blob.PutOptions{ContentType: contentType})
	if err != nil {
		s.observe("attachment.add", start, err, Result{})
		return Attachment{}, Result{}, err
	}

	var created Attachment
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		// The task may have vanished between the read and this write.
		fresh, ok := tx.Snapshot().FindTask(taskID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		var txErr error
		created, txErr = tx.CreateAttachment(Attachment{
			ProjectID:   fresh.ProjectID,
			TaskID:      taskID,
			FileName:    fileName,
			ContentType: contentType,
			SizeBytes:   info.Size,
			StorageKey:  key,
			UploadedBy:  uploadedBy,
		})
		return txErr
	})
	s.observe("attachment.add", start, err, res)
	if err != nil {
		if _, delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn("orphaned blob payload", zap.String("storage_key", key), zap.Error(delErr))
		}
		return Attachment{}, res, err
	}
	return created, res, nil
}

// DeleteAttachment removes the payload first, then the record. A payload
// delete failure aborts so the record never points at limbo.
func (s *Service) DeleteAttachment(ctx context.Context, id string) (Result, error) {
	start := s.nowFn()
	att, err := s.findAttachment(ctx, id)
	if err != nil {
		s.observe("attachment.delete", start, err, Result{})
		return Result{}, err
	}
	if att.StorageKey != "" {
		if _, err := s.blobs.Delete(ctx, att.StorageKey); err != nil {
			s.observe("attachment.delete", start, err, Result{})
			return Result{}, err
		}
	}
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteAttachment(id)
	})
	s.observe("attachment.delete", start, err, res)
	return res, err
}

// OpenAttachment returns the attachment record and a reader over its payload.
func (s *Service) OpenAttachment(ctx context.Context, id string) (Attachment, io.ReadCloser, error) {
	att, err := s.findAttachment(ctx, id)
	if err != nil {
		return Attachment{}, nil, err
	}
	_, rc, err := s.blobs.Get(ctx, att.StorageKey)
	if err != nil {
		return Attachment{}, nil, err
	}
	return att, rc, nil
}

// AttachmentURL returns a time-limited download URL when the blob backend
// supports presigning, falling back to the stored public URL.
func (s *Service) AttachmentURL(ctx context.Context, id string) (string, error) {
	att, err := s.findAttachment(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := s.blobs.PresignURL(ctx, att.StorageKey, blob.SignedURLOptions{})
	if err == nil {
		return url, nil
	}
	if errors.Is(err, blob.ErrUnsupported) && att.PublicURL != nil {
		return *att.PublicURL, nil
	}
	return "", err
}

// ListAttachments returns a task's attachment records.
func (s *Service) ListAttachments(ctx context.Context, taskID string) ([]Attachment, error) {
	var out []Attachment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindTask(taskID); !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		out = view.ListTaskAttachments(taskID)
		return nil
	})
	return out, err
}

func (s *Service) findAttachment(ctx context.Context, id string) (Attachment, error) {
	var att Attachment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		a, ok := view.FindAttachment(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAttachment, ID: id}
		}
		att = a
		return nil
	})
	return att, err
}

// AddComment records a comment on a task.
func (s *Service) AddComment(ctx context.Context, taskID string, author PartyRef, body string) (Comment, Result, error) {
	start := s.nowFn()
	body = strings.TrimSpace(body)
	if body == "" {
		err := domain.ValidationError{Field: "body", Reason: "required"}
		s.observe("comment.add", start, err, Result{})
		return Comment{}, Result{}, err
	}
	if !author.Valid() {
		err := domain.ValidationError{Field: "author", Reason: "unknown party kind or missing id"}
		s.observe("comment.add", start, err, Result{})
		return Comment{}, Result{}, err
	}
	var created Comment
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.Snapshot().FindTask(taskID); !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		var txErr error
		created, txErr = tx.CreateComment(Comment{TaskID: taskID, Author: author, Body: body})
		return txErr
	})
	s.observe("comment.add", start, err, res)
	if err != nil {
		return Comment{}, res, err
	}
	return created, res, nil
}

// EditComment replaces a comment's body. Only the original author may edit;
// the edited flag is set permanently.
func (s *Service) EditComment(ctx context.Context, id string, actor PartyRef, body string) (Comment, Result, error) {
	start := s.nowFn()
	body = strings.TrimSpace(body)
	if body == "" {
		err := domain.ValidationError{Field: "body", Reason: "required"}
		s.observe("comment.edit", start, err, Result{})
		return Comment{}, Result{}, err
	}
	var updated Comment
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.Snapshot().FindComment(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityComment, ID: id}
		}
		if !current.Author.Equal(actor) {
			return domain.ValidationError{Field: "actor", Reason: "only the author may edit a comment"}
		}
		var txErr error
		updated, txErr = tx.UpdateComment(id, func(c *Comment) error {
			c.Body = body
			c.Edited = true
			return nil
		})
		return txErr
	})
	s.observe("comment.edit", start, err, res)
	if err != nil {
		return Comment{}, res, err
	}
	return updated, res, nil
}

// DeleteComment removes a comment. Only the original author may delete.
func (s *Service) DeleteComment(ctx context.Context, id string, actor PartyRef) (Result, error) {
	start := s.nowFn()
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.Snapshot().FindComment(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityComment, ID: id}
		}
		if !current.Author.Equal(actor) {
			return domain.ValidationError{Field: "actor", Reason: "only the author may delete a comment"}
		}
		return tx.DeleteComment(id)
	})
	s.observe("comment.delete", start, err, res)
	return res, err
}

// ListComments returns a task's comments oldest-first.
func (s *Service) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	var out []Comment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindTask(taskID); !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		out = view.ListTaskComments(taskID)
		return nil
	})
	return out, err
}

// ListChangeLog returns a task's audit trail newest-first, bounded by limit
// when limit > 0.
func (s *Service) ListChangeLog(ctx context.Context, taskID string, limit int) ([]ChangeLogEntry, error) {
	var out []ChangeLogEntry
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindTask(taskID); !ok {
			return domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
		}
		out = view.ListTaskChangeLog(taskID, limit)
		return nil
	})
	return out, err
}

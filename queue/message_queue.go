package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/hibiken/asynq"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

// MessageQueue processes the fire-and-forget tasks scheduled off the
// request path: raw-message archival, blob cleanup and reset-token
// delivery.
type MessageQueue struct {
	s3Service     *services.S3Service
	mailerService *services.MailerService
	env           *types.Environment
}

func NewMessageQueue(dbSelector *repository.CouchDBSelector, env *types.Environment) *MessageQueue {
	return &MessageQueue{
		s3Service:     services.NewS3Service(env),
		mailerService: services.NewMailerService(),
		env:           env,
	}
}

// ProcessArchiveTask uploads an accepted raw message to the archive.
// The email record is already committed; a permanently failing upload
// is logged and dropped, never bounced back to the record.
func (mq *MessageQueue) ProcessArchiveTask(ctx context.Context, t *asynq.Task) error {
	var task types.ArchiveRawTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if !mq.env.HasBlobStorage() {
		return fmt.Errorf("no blob storage configured: %w", asynq.SkipRetry)
	}
	if uErr := mq.s3Service.UploadRaw(task.Key, task.Raw); uErr != nil {
		level.Error(global.Logger).Log("msg", "raw archive upload failed", "key", task.Key, "error", uErr.Error())
		return uErr // retried by asynq up to MaxRetry
	}
	return nil
}

// ProcessDeleteBlobsTask best-effort deletes archived blobs after an
// email or account deletion.
func (mq *MessageQueue) ProcessDeleteBlobsTask(ctx context.Context, t *asynq.Task) error {
	var task types.DeleteBlobsTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if !mq.env.HasBlobStorage() {
		return fmt.Errorf("no blob storage configured: %w", asynq.SkipRetry)
	}
	if dErr := mq.s3Service.DeleteBlobs(task.Keys); dErr != nil {
		level.Error(global.Logger).Log("msg", "blob delete failed", "count", len(task.Keys), "error", dErr.Error())
		return dErr
	}
	return nil
}

// ProcessResetEmailTask delivers a password-reset token.
func (mq *MessageQueue) ProcessResetEmailTask(ctx context.Context, t *asynq.Task) error {
	var task types.ResetEmailTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if sErr := mq.mailerService.SendResetToken(task.Email, task.Token); sErr != nil {
		level.Error(global.Logger).Log("msg", "reset email delivery failed", "error", sErr.Error())
		return sErr
	}
	return nil
}

package types

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

var (
	QueueTypeArchiveRaw  = "blob:archive"
	QueueTypeDeleteBlobs = "blob:delete"
	QueueTypeResetEmail  = "mail:reset"
)

// ArchiveRawTask uploads one accepted raw message to the blob archive.
type ArchiveRawTask struct {
	EmailID string `json:"emailId"`
	Key     string `json:"key"`
	Raw     []byte `json:"raw"`
}

// DeleteBlobsTask best-effort deletes archived blobs, used by the
// account cascade and single email deletion.
type DeleteBlobsTask struct {
	Keys []string `json:"keys"`
}

// ResetEmailTask delivers a password-reset token through the outbound
// email provider.
type ResetEmailTask struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func NewArchiveRawTask(t *ArchiveRawTask) (*asynq.Task, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeArchiveRaw, payload), nil
}

func NewDeleteBlobsTask(t *DeleteBlobsTask) (*asynq.Task, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeDeleteBlobs, payload), nil
}

func NewResetEmailTask(t *ResetEmailTask) (*asynq.Task, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(QueueTypeResetEmail, payload), nil
}

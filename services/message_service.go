package services

import (
	"context"
	"encoding/json"

	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
)

// MessageService reads and deletes stored email records. Records are
// denormalized with owner and local part, so every operation scopes by
// those fields without touching the alias database.
type MessageService struct {
	emailRepo repository.Repository
}

func NewMessageService(dbSelector repository.DBSelector) *MessageService {
	emailRepo, eErr := dbSelector.ChooseDB(repository.Emails)
	if eErr != nil {
		panic(eErr)
	}
	return &MessageService{
		emailRepo: emailRepo,
	}
}

// List returns email summaries for one owned alias, newest first.
func (ms *MessageService) List(owner string, localPart string, limit int, skip int) ([]*types.EmailRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	result, fErr := findDocs(ctx, ms.emailRepo, &findQuery{
		Selector: map[string]interface{}{"user": owner, "local_part": localPart},
		Sort:     []map[string]interface{}{{"user": "desc"}, {"local_part": "desc"}, {"created": "desc"}},
		Limit:    limit,
		Skip:     skip,
		UseIndex: "email-user-alias-created-index",
	})
	if fErr != nil {
		return nil, fErr
	}
	records := make([]*types.EmailRecord, 0, len(result.Docs))
	for _, raw := range result.Docs {
		var record types.EmailRecord
		if uErr := json.Unmarshal(raw, &record); uErr != nil {
			return nil, uErr
		}
		records = append(records, &record)
	}
	return records, nil
}

// Get returns one email record if the caller owns it; anything else is
// ErrNotFound.
func (ms *MessageService) Get(owner string, id string) (*types.EmailRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	resp, gErr := ms.emailRepo.GetByID(ctx, id)
	if gErr != nil {
		return nil, gErr
	}
	var record types.EmailRecord
	if mErr := repository.MapToObject(resp, &record); mErr != nil {
		return nil, mErr
	}
	if record.User != owner {
		return nil, types.ErrNotFound
	}
	return &record, nil
}

// Delete removes one owned email record and returns the archived blob
// key, empty when the raw message was never archived. Blob cleanup is
// the caller's fire-and-forget concern.
func (ms *MessageService) Delete(owner string, id string) (string, error) {
	record, gErr := ms.Get(owner, id)
	if gErr != nil {
		return "", gErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if dErr := ms.emailRepo.Delete(ctx, id); dErr != nil {
		return "", dErr
	}
	return record.RawKey, nil
}

// DeleteAllByUser removes every email record of the account and
// returns the archived blob keys collected before deletion. Used by
// the cascade delete; re-running against already deleted rows is a
// no-op.
func (ms *MessageService) DeleteAllByUser(ctx context.Context, username string) ([]string, error) {
	rawKeys := []string{}
	for {
		result, fErr := findDocs(ctx, ms.emailRepo, &findQuery{
			Selector: map[string]interface{}{"user": username},
			Fields:   []string{"_id", "_rev", "raw_key"},
			Limit:    100,
		})
		if fErr != nil {
			return rawKeys, fErr
		}
		if len(result.Docs) == 0 {
			return rawKeys, nil
		}
		docs := make([]types.BaseDocument, 0, len(result.Docs))
		for _, raw := range result.Docs {
			var row struct {
				types.BaseDocument
				RawKey string `json:"raw_key"`
			}
			if uErr := json.Unmarshal(raw, &row); uErr != nil {
				return rawKeys, uErr
			}
			if row.RawKey != "" {
				rawKeys = append(rawKeys, row.RawKey)
			}
			docs = append(docs, row.BaseDocument)
		}
		if bErr := bulkDelete(ctx, ms.emailRepo, docs); bErr != nil {
			return rawKeys, bErr
		}
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
	"github.com/siparmail/sipar-server/util"
)

type TokenService struct {
	tokenRepo repository.Repository
	userRepo  repository.Repository
}

// expiredTokenView is a view structure for deleting expired tokens
type expiredTokenView struct {
	TotalRows int64             `json:"total_rows"`
	Offset    int64             `json:"offset"`
	Rows      []expiredTokenRow `json:"rows"`
}

type expiredTokenRow struct {
	ID      string `json:"id"`
	Expires int64  `json:"key"`   // key is the expiry timestamp
	Rev     string `json:"value"` // value is _rev which is needed for deletion
}

func NewTokenService(dbSelector repository.DBSelector) *TokenService {
	tokenRepo, tErr := dbSelector.ChooseDB(repository.Tokens)
	if tErr != nil {
		panic(tErr)
	}
	userRepo, uErr := dbSelector.ChooseDB(repository.Users)
	if uErr != nil {
		panic(uErr)
	}
	return &TokenService{
		tokenRepo: tokenRepo,
		userRepo:  userRepo,
	}
}

// Issue creates a new bearer token for the account and returns its
// plaintext, the only time the plaintext ever exists outside the
// caller. Only the SHA-256 digest is stored.
func (ts *TokenService) Issue(username string, tokenType string, ttlSeconds int) (string, error) {
	plaintext, err := util.GenerateToken()
	if err != nil {
		return "", err
	}
	digest := util.TokenDigest(plaintext)

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	token := &types.AccessToken{
		Digest:  digest,
		User:    username,
		Type:    tokenType,
		Expires: now.Add(time.Duration(ttlSeconds) * time.Second).UnixMilli(),
		Created: now.UnixMilli(),
	}
	if sErr := ts.tokenRepo.Save(ctx, digest, token); sErr != nil {
		return "", sErr
	}
	return plaintext, nil
}

// Verify resolves a presented plaintext to its owning account. It
// fails with ErrNotFound for unknown or expired tokens and with
// ErrDisabled when the owner is disabled; a disabled account thereby
// invalidates all its outstanding sessions without any deletion.
func (ts *TokenService) Verify(plaintext string, tokenType string) (*types.Account, error) {
	if plaintext == "" {
		return nil, types.ErrNotFound
	}
	digest := util.TokenDigest(plaintext)

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	resp, gErr := ts.tokenRepo.GetByID(ctx, digest)
	if gErr != nil {
		return nil, gErr
	}
	var token types.AccessToken
	if mErr := repository.MapToObject(resp, &token); mErr != nil {
		return nil, mErr
	}
	if token.Type != tokenType {
		return nil, types.ErrNotFound
	}
	if token.Expires <= time.Now().UTC().UnixMilli() {
		return nil, types.ErrNotFound
	}

	userResp, uErr := ts.userRepo.GetByID(ctx, token.User)
	if uErr != nil {
		return nil, uErr
	}
	var account types.Account
	if mErr := repository.MapToObject(userResp, &account); mErr != nil {
		return nil, mErr
	}
	if !account.Enabled {
		return nil, types.ErrDisabled
	}
	return &account, nil
}

// Revoke deletes the token for the presented plaintext. Revoking an
// unknown token is a no-op.
func (ts *TokenService) Revoke(plaintext string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	err := ts.tokenRepo.Delete(ctx, util.TokenDigest(plaintext))
	if err != nil && err != types.ErrNotFound {
		return err
	}
	return nil
}

// DeleteAllByUser removes every token owned by the account, used by
// the cascade delete. Idempotent.
func (ts *TokenService) DeleteAllByUser(ctx context.Context, username string) error {
	for {
		result, fErr := findDocs(ctx, ts.tokenRepo, &findQuery{
			Selector: map[string]interface{}{"user": username},
			Fields:   []string{"_id", "_rev"},
			Limit:    100,
		})
		if fErr != nil {
			return fErr
		}
		if len(result.Docs) == 0 {
			return nil
		}
		docs := make([]types.BaseDocument, 0, len(result.Docs))
		for _, raw := range result.Docs {
			var base types.BaseDocument
			if uErr := json.Unmarshal(raw, &base); uErr != nil {
				return uErr
			}
			docs = append(docs, base)
		}
		if bErr := bulkDelete(ctx, ts.tokenRepo, docs); bErr != nil {
			return bErr
		}
	}
}

// PurgeExpired loops and bulk deletes expired tokens until none are
// left. Advisory hygiene only: Verify re-checks expiry on every
// request, so a failed purge is logged and forgotten.
func (ts *TokenService) PurgeExpired() {
	totalRows := int64(1) // start value to enter the loop
	for totalRows > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)

		now := time.Now().UTC().UnixMilli()
		query := fmt.Sprintf("_design/token/_view/expired?endkey=%d&limit=100", now)
		response, err := ts.tokenRepo.GetByID(ctx, query)
		if err != nil {
			level.Error(global.Logger).Log("msg", "error getting expired tokens", "error", err.Error())
			cancel()
			return
		}

		var expired expiredTokenView
		if mErr := repository.MapToObject(response, &expired); mErr != nil {
			level.Error(global.Logger).Log("msg", "error mapping expired tokens", "error", mErr.Error())
			cancel()
			return
		}
		if len(expired.Rows) > 0 {
			bulkDeleteDocs := make([]types.BaseDocument, 0, len(expired.Rows))
			for _, row := range expired.Rows {
				bulkDeleteDocs = append(bulkDeleteDocs, types.BaseDocument{
					UnderscoreID:  row.ID,
					UnderscoreRev: row.Rev,
					Deleted:       true,
				})
			}
			if bErr := ts.tokenRepo.Update(ctx, "_bulk_docs", map[string]interface{}{"docs": bulkDeleteDocs}); bErr != nil {
				level.Error(global.Logger).Log("msg", "error deleting expired tokens", "error", bErr.Error())
				cancel()
				return
			}
			global.Logger.Log("msg", "purged expired tokens", "count", len(expired.Rows))
		}
		totalRows = int64(len(expired.Rows))
		cancel()
	}
}

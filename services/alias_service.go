package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
	"github.com/siparmail/sipar-server/util"
)

// AliasService is the quota-enforced alias registry. Local parts are
// unique system-wide; CouchDB document ids are the final arbiter, so a
// race between two creations of the same local part resolves to one
// winner and one ErrConflict.
type AliasService struct {
	aliasRepo repository.Repository
	userRepo  repository.Repository
}

func NewAliasService(dbSelector repository.DBSelector) *AliasService {
	aliasRepo, aErr := dbSelector.ChooseDB(repository.Aliases)
	if aErr != nil {
		panic(aErr)
	}
	userRepo, uErr := dbSelector.ChooseDB(repository.Users)
	if uErr != nil {
		panic(uErr)
	}
	return &AliasService{
		aliasRepo: aliasRepo,
		userRepo:  userRepo,
	}
}

// Create registers a new alias for the owner. Format is checked before
// quota and uniqueness; the quota compares the count of enabled
// aliases against the owner's alias limit read fresh from the account.
func (as *AliasService) Create(owner *types.Account, localPart string) (*types.Alias, error) {
	localPart = strings.ToLower(strings.TrimSpace(localPart))
	if !util.IsValidLocalPart(localPart) {
		return nil, types.ErrBadRequest
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	count, cErr := as.CountEnabled(ctx, owner.Username)
	if cErr != nil {
		return nil, cErr
	}
	if count >= owner.AliasLimit {
		return nil, types.ErrQuotaExceeded
	}

	alias := &types.Alias{
		LocalPart: localPart,
		User:      owner.Username,
		Disabled:  false,
		Created:   time.Now().UTC().UnixMilli(),
	}
	if sErr := as.aliasRepo.Save(ctx, localPart, alias); sErr != nil {
		return nil, sErr // 409 arrives as types.ErrConflict
	}
	return alias, nil
}

// Delete removes the alias row. Email records addressed to the local
// part are intentionally left in place. An alias owned by someone else
// reports ErrNotFound, not who owns it.
func (as *AliasService) Delete(owner string, localPart string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	alias, gErr := as.get(ctx, localPart)
	if gErr != nil {
		return gErr
	}
	if alias.User != owner {
		return types.ErrNotFound
	}
	return as.aliasRepo.Delete(ctx, localPart)
}

// List returns all aliases owned by the account.
func (as *AliasService) List(owner string) ([]*types.Alias, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	result, fErr := findDocs(ctx, as.aliasRepo, &findQuery{
		Selector: map[string]interface{}{"user": owner},
		Limit:    1000,
		UseIndex: "alias-user-index",
	})
	if fErr != nil {
		return nil, fErr
	}
	aliases := make([]*types.Alias, 0, len(result.Docs))
	for _, raw := range result.Docs {
		var alias types.Alias
		if uErr := json.Unmarshal(raw, &alias); uErr != nil {
			return nil, uErr
		}
		aliases = append(aliases, &alias)
	}
	return aliases, nil
}

// CountEnabled counts the enabled aliases of one account. Disabled
// aliases do not occupy quota.
func (as *AliasService) CountEnabled(ctx context.Context, owner string) (int, error) {
	result, fErr := findDocs(ctx, as.aliasRepo, &findQuery{
		Selector: map[string]interface{}{"user": owner, "disabled": false},
		Fields:   []string{"_id"},
		Limit:    1000,
		UseIndex: "alias-user-index",
	})
	if fErr != nil {
		return 0, fErr
	}
	return len(result.Docs), nil
}

// GetActive resolves a local part to its alias for inbound routing,
// without distinguishing absent from disabled.
func (as *AliasService) GetActive(ctx context.Context, localPart string) (*types.Alias, error) {
	alias, gErr := as.get(ctx, localPart)
	if gErr != nil {
		return nil, gErr
	}
	if alias.Disabled {
		return nil, types.ErrNotFound
	}
	return alias, nil
}

func (as *AliasService) get(ctx context.Context, localPart string) (*types.Alias, error) {
	resp, gErr := as.aliasRepo.GetByID(ctx, localPart)
	if gErr != nil {
		return nil, gErr
	}
	var alias types.Alias
	if mErr := repository.MapToObject(resp, &alias); mErr != nil {
		return nil, mErr
	}
	return &alias, nil
}

// DeleteAllByUser removes every alias owned by the account, used by
// the cascade delete.
func (as *AliasService) DeleteAllByUser(ctx context.Context, username string) error {
	for {
		result, fErr := findDocs(ctx, as.aliasRepo, &findQuery{
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
		if bErr := bulkDelete(ctx, as.aliasRepo, docs); bErr != nil {
			return bErr
		}
	}
}

package repository

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

func createIndex(repo Repository, payload map[string]interface{}) error {
	c := repo.GetClient().(*resty.Client)
	resp, rErr := c.R().SetBody(payload).Post(fmt.Sprintf("%s/%s", repo.GetDBName(), "_index"))
	if rErr != nil {
		return rErr
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}

// CreateAliasUserIndex indexes aliases by owner and disabled flag so
// the quota check counts only enabled aliases of one account.
func CreateAliasUserIndex(aliasRepo Repository) error {
	return createIndex(aliasRepo, map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []string{"user", "disabled"},
		},
		"name": "alias-user-index",
		"ddoc": "alias-user-index",
		"type": "json",
	})
}

// CreateEmailUserAliasIndex indexes email records for inbox listing,
// newest first within one owner and local part.
func CreateEmailUserAliasIndex(emailRepo Repository) error {
	return createIndex(emailRepo, map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []map[string]interface{}{
				{"user": "desc"},
				{"local_part": "desc"},
				{"created": "desc"},
			},
		},
		"name": "email-user-alias-created-index",
		"ddoc": "email-user-alias-created-index",
		"type": "json",
	})
}

// CreateTokenUserIndex indexes tokens by owning account for the
// cascade delete.
func CreateTokenUserIndex(tokenRepo Repository) error {
	return createIndex(tokenRepo, map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []string{"user"},
		},
		"name": "token-user-index",
		"ddoc": "token-user-index",
		"type": "json",
	})
}

// CreateUserRoleIndex indexes accounts by role for the last-admin
// guard.
func CreateUserRoleIndex(userRepo Repository) error {
	return createIndex(userRepo, map[string]interface{}{
		"index": map[string]interface{}{
			"fields": []string{"role"},
		},
		"name": "user-role-index",
		"ddoc": "user-role-index",
		"type": "json",
	})
}

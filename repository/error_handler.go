package repository

import (
	"encoding/json"
	"errors"

	"github.com/go-kit/log/level"
	"github.com/go-resty/resty/v2"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/types"
)

// handleError maps CouchDB HTTP failures to typed errors so callers
// never inspect error message strings.
func handleError(reqErr *resty.Response) error {
	if reqErr.StatusCode() == 404 {
		return types.ErrNotFound
	}
	if reqErr.StatusCode() == 409 {
		return types.ErrConflict
	}
	if reqErr.IsError() {
		var body map[string]interface{}
		uErr := json.Unmarshal(reqErr.Body(), &body)
		if uErr != nil {
			level.Error(global.Logger).Log("msg", "failed to unmarshal couchdb error", "error", uErr)
			return uErr
		}
		// proxies can hand back a non-string error field
		if errDesc, ok := body["error"].(string); ok {
			return errors.New(errDesc)
		}
		return types.ErrBadRequest
	}
	return nil
}

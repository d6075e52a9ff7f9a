package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
)

const dbTimeout = time.Second * 10

// findQuery is a CouchDB mango _find request body.
type findQuery struct {
	Selector map[string]interface{}   `json:"selector"`
	Fields   []string                 `json:"fields,omitempty"`
	Sort     []map[string]interface{} `json:"sort,omitempty"`
	Limit    int                      `json:"limit,omitempty"`
	Skip     int                      `json:"skip,omitempty"`
	Bookmark string                   `json:"bookmark,omitempty"`
	UseIndex string                   `json:"use_index,omitempty"`
}

type findResponse struct {
	Docs     []json.RawMessage `json:"docs"`
	Bookmark string            `json:"bookmark"`
}

// findDocs runs a mango query against the repository database.
func findDocs(ctx context.Context, repo repository.Repository, query *findQuery) (*findResponse, error) {
	c := repo.GetClient().(*resty.Client)

	var result findResponse
	var dbErr types.CouchDBError
	resp, err := c.R().
		SetContext(ctx).
		SetBody(query).
		SetResult(&result).
		SetError(&dbErr).
		Post(fmt.Sprintf("%s/_find", repo.GetDBName()))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("find failed: %s %s", dbErr.Error, dbErr.Reason)
	}
	return &result, nil
}

// bulkDelete marks the given documents deleted through _bulk_docs.
// Each entry needs _id and _rev; already-deleted rows conflict and are
// skipped by CouchDB, which keeps re-driving a cascade safe.
func bulkDelete(ctx context.Context, repo repository.Repository, docs []types.BaseDocument) error {
	if len(docs) == 0 {
		return nil
	}
	deletes := make([]types.BaseDocument, 0, len(docs))
	for _, d := range docs {
		deletes = append(deletes, types.BaseDocument{
			UnderscoreID:  d.UnderscoreID,
			UnderscoreRev: d.UnderscoreRev,
			Deleted:       true,
		})
	}
	return repo.Update(ctx, "_bulk_docs", map[string]interface{}{"docs": deletes})
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
	"github.com/siparmail/sipar-server/types"
)

// implements Repository interface using CouchDB
type CouchDBRepository struct {
	client *resty.Client
	dbName string
}

func NewCouchDBRepository(url, dbName string, username string, password string, mock bool) (Repository, error) {
	cl := resty.New().SetBaseURL(url).SetTimeout(time.Second * 10)
	cl.SetHeader("Content-Type", "application/json")
	cl.SetHeader("Accept", "application/json")
	cl.SetBasicAuth(username, password)

	if mock {
		httpmock.ActivateNonDefault(cl.GetClient())
	}

	existsRes, existsErr := cl.R().Head(dbName)
	if existsErr != nil {
		return nil, fmt.Errorf("failed to check if database exists: %s", existsErr.Error())
	}
	if existsRes.StatusCode() == 200 {
		return &CouchDBRepository{cl, dbName}, nil
	}

	var ok types.OK
	var dbErr types.CouchDBError
	// create DB since it doesn't exist
	cl.R().SetResult(&ok).SetError(&dbErr).Put(dbName)
	if dbErr.Error != "" {
		return nil, fmt.Errorf("failed to create database %s: %s", dbName, dbErr.Error)
	}
	if !ok.IsOK {
		return nil, fmt.Errorf("failed to create database %s", dbName)
	}
	return &CouchDBRepository{cl, dbName}, nil
}

// GetByID returns a document by its ID
func (c *CouchDBRepository) GetByID(ctx context.Context, id string) (interface{}, error) {
	response, err := c.client.R().SetContext(ctx).Get(fmt.Sprintf("%s/%s", c.dbName, id))
	if err != nil {
		return nil, err
	}
	if response.IsError() {
		return nil, handleError(response)
	}
	return response, nil
}

// Save creates a new doc or updates an existing one. A create against
// an existing document id surfaces the 409 as types.ErrConflict, which
// is how local-part and username uniqueness is enforced.
func (c *CouchDBRepository) Save(ctx context.Context, docID string, data interface{}) error {
	response, err := c.client.R().SetContext(ctx).SetBody(data).Put(fmt.Sprintf("%s/%s", c.dbName, docID))
	if err != nil {
		return err
	}
	if response.IsError() {
		return handleError(response)
	}
	return nil
}

// Update updates an existing document (or posts to a database endpoint
// such as _bulk_docs when id starts with an underscore)
func (c *CouchDBRepository) Update(ctx context.Context, id string, data interface{}) error {
	response, err := c.client.R().SetContext(ctx).SetBody(data).Post(fmt.Sprintf("%s/%s", c.dbName, id))
	if err != nil {
		return err
	}
	if response.IsError() {
		return handleError(response)
	}
	return nil
}

// Delete deletes a document by its ID. Deleting an already absent
// document returns types.ErrNotFound, which cascade callers treat as a
// no-op so the sequence stays idempotent.
func (c *CouchDBRepository) Delete(ctx context.Context, id string) error {
	doc, err := c.GetByID(ctx, id)
	if err != nil {
		return err
	}
	var base types.BaseDocument
	if mErr := MapToObject(doc, &base); mErr != nil {
		return mErr
	}
	rev := base.UnderscoreRev
	if rev == "" {
		rev = base.Rev
	}

	response, dErr := c.client.R().SetContext(ctx).SetQueryParam("rev", rev).Delete(fmt.Sprintf("%s/%s", c.dbName, id))
	if dErr != nil {
		return dErr
	}
	if response.IsError() {
		return handleError(response)
	}
	return nil
}

// return name of the database
func (c *CouchDBRepository) GetDBName() string {
	return c.dbName
}

// returns a resty client
func (c *CouchDBRepository) GetClient() interface{} {
	return c.client
}

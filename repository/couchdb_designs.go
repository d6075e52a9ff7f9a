package repository

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/types"
)

func createDesignAndView(databaseName string, designName string, viewName string, mapFunction string, reduceFunction string) error {
	client := resty.New().SetTimeout(time.Second*10).SetBasicAuth(global.Conf.CouchDB.Username, global.Conf.CouchDB.Password)

	scheme := global.Conf.CouchDB.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := fmt.Sprintf("%s://%s", scheme, global.Conf.CouchDB.Host)
	if global.Conf.CouchDB.Port != 0 {
		host = fmt.Sprintf("%s://%s:%d", scheme, global.Conf.CouchDB.Host, global.Conf.CouchDB.Port)
	}

	// check if design document already exists
	url := fmt.Sprintf("%s/%s/_design/%s/_view/%s", host, databaseName, designName, viewName)
	existingResponse, eErr := client.R().Head(url)
	if eErr != nil {
		return eErr
	}
	if existingResponse.StatusCode() == 200 {
		return nil // view already exists
	}
	if existingResponse.IsError() && existingResponse.StatusCode() != 404 {
		return fmt.Errorf("failed to check design %s with view %s: %s", designName, viewName, existingResponse.Status())
	}

	ddoc := &types.DesignDocument{
		Language: "javascript",
		Views: map[string]types.MapFunction{
			viewName: {
				Map: mapFunction,
			},
		},
	}
	if reduceFunction != "" {
		temp := ddoc.Views[viewName]
		temp.Reduce = reduceFunction
		ddoc.Views[viewName] = temp
	}
	url = fmt.Sprintf("%s/%s/_design/%s", host, databaseName, designName)
	resp, err := client.R().SetBody(ddoc).Put(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return handleError(resp)
	}
	return nil
}

// CreateDesign_ExpiredTokens indexes tokens by their expiry timestamp
// so the background purge can bulk delete the ones already past it.
func CreateDesign_ExpiredTokens(databaseName string, designName string, viewName string) error {
	mapFunction := `function(doc)
						{
							if (doc.expires) {
								emit(doc.expires, doc._rev);
							}
						}`
	return createDesignAndView(databaseName, designName, viewName, mapFunction, "")
}

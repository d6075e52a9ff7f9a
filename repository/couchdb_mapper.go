package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-resty/resty/v2"
)

// MapToObject unmarshals a raw CouchDB resty response into the given
// struct pointer.
func MapToObject(resp interface{}, obj interface{}) error {
	if response, ok := resp.(*resty.Response); ok {
		data := response.Body()

		val := reflect.ValueOf(obj)
		if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
			return errors.New("obj is not a pointer to a struct")
		}

		err := json.Unmarshal(data, obj)
		if err != nil {
			return fmt.Errorf("%s cannot be mapped to the given object", response.Body())
		}
		return nil
	}
	return errors.New("resp is not a resty.Response")
}

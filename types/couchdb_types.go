package types

type OK struct {
	IsOK bool `json:"ok"`
}

type CouchDBError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Document represents a single document returned by Get
type BaseDocument struct {
	UnderscoreRev string `json:"_rev,omitempty"`
	Rev           string `json:"rev,omitempty"`
	ID            string `json:"id,omitempty"`
	UnderscoreID  string `json:"_id,omitempty"`
	OK            bool   `json:"ok,omitempty"`
	Deleted       bool   `json:"_deleted,omitempty"`
}

type MapFunction struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

type DesignDocument struct {
	BaseDocument
	Language string                 `json:"language"`
	Views    map[string]MapFunction `json:"views"`
}

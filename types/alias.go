package types

// Alias is stored with the local part as the document id; CouchDB
// enforces system-wide uniqueness of local parts.
type Alias struct {
	BaseDocument
	LocalPart string `json:"local_part"`
	User      string `json:"user"`
	Disabled  bool   `json:"disabled"`
	Created   int64  `json:"created"`
}

package types

const (
	TokenTypeSession = "session"
	TokenTypeReset   = "reset"
)

// AccessToken stores only the SHA-256 digest of a bearer secret (the
// digest doubles as the document id). The plaintext is returned to the
// caller exactly once and never persisted.
type AccessToken struct {
	BaseDocument
	Digest  string `json:"digest"`
	User    string `json:"user"`
	Type    string `json:"type"` // session or reset
	Expires int64  `json:"expires"`
	Created int64  `json:"created"`
}

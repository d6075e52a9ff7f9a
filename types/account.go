package types

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Account is stored with the username as the document id, which makes
// CouchDB the arbiter of username uniqueness.
type Account struct {
	BaseDocument
	Username   string `json:"username" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Salt       string `json:"salt"`       // base64, 16 bytes, regenerated on every password change
	Hash       string `json:"hash"`       // base64url PBKDF2 digest, no padding
	Iterations int    `json:"iterations"` // work factor the stored hash was created with
	Role       string `json:"role"`
	AliasLimit int    `json:"alias_limit"`
	Enabled    bool   `json:"enabled"`
	Created    int64  `json:"created"`
	Modified   int64  `json:"modified,omitempty"`
}

// EmailMapping maps a unique lowercase email (document id) to the
// owning username, same trick as the account id for uniqueness.
type EmailMapping struct {
	BaseDocument
	Email    string `json:"email"`
	Username string `json:"username"`
}

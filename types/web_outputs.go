package types

type OutputAccount struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	AliasLimit int    `json:"alias_limit"`
	Enabled    bool   `json:"enabled"`
	Created    int64  `json:"created"`
}

type OutputAlias struct {
	LocalPart string `json:"local"`
	Address   string `json:"address"` // local@domain convenience
	Disabled  bool   `json:"disabled"`
	Created   int64  `json:"created"`
}

type OutputEmailSummary struct {
	ID      string `json:"id"`
	Alias   string `json:"alias"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    int64  `json:"date"`
	Size    int64  `json:"size"`
	Created int64  `json:"created"`
}

type OutputEmail struct {
	OutputEmailSummary
	To       string `json:"to"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html"`
	HasRaw   bool   `json:"has_raw"`
}

type OutputAdminUser struct {
	OutputAccount
	AliasCount int `json:"alias_count"`
}

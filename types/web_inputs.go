package types

// for signup
type InputSignup struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"pw" validate:"required,min=8"`
}

// for login; id is username or email
type InputLogin struct {
	ID       string `json:"id" validate:"required"`
	Password string `json:"pw" validate:"required"`
}

type InputResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type InputResetConfirm struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPw" validate:"required,min=8"`
}

type InputCreateAlias struct {
	LocalPart string `json:"local" validate:"required"`
}

// admin patch; pointers so absent fields stay untouched
type InputPatchUser struct {
	AliasLimit *int  `json:"alias_limit,omitempty"`
	Disabled   *bool `json:"disabled,omitempty"`
}

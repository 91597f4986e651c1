package handler

// errorResponse mirrors the envelope rendered by the HTTP error handler.
type errorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"max=1024"`
}

// loginRequest is the OAuth2 password grant form.
type loginRequest struct {
	GrantType string `form:"grant_type" validate:"omitempty,eq=password"`
	Username  string `form:"username"   validate:"required"`
	Password  string `form:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type scoreUpdateRequest struct {
	Points *int64 `json:"points" validate:"required"`
}

type scoreUpdateResponse struct {
	Points int64 `json:"points"`
}

type scoreEntryResponse struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

type meResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Score    *int64 `json:"score"`
}

package domain

import (
	"fmt"
	"time"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// Token is the credential returned by register and login.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// TokenErrorKind distinguishes why a token was rejected.
type TokenErrorKind int

const (
	TokenMalformed TokenErrorKind = iota + 1
	TokenMissingSubject
	TokenExpired
)

func (k TokenErrorKind) String() string {
	switch k {
	case TokenMalformed:
		return "malformed"
	case TokenMissingSubject:
		return "missing_subject"
	case TokenExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TokenError is returned by the token codec when verification fails.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token %s", e.Kind)
	}
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

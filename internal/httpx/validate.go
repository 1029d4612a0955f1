package httpx

import (
	"net/url"
	"regexp"
)

// compactToken matches the header.payload.signature shape of a compact JWS.
var compactToken = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// ValidateToken checks that token has the shape of a compact signed token.
// The signature itself is never verified.
func ValidateToken(token string) error {
	if token == "" {
		return NewValidationError("invalid_token", "token is empty")
	}
	if !compactToken.MatchString(token) {
		return NewValidationError("invalid_token", "token is not a compact JWS (header.payload.signature)")
	}
	return nil
}

// ValidateURL checks that raw parses as an absolute URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewValidationError("invalid_url", "destination URL does not parse: "+err.Error())
	}
	if !u.IsAbs() || u.Host == "" {
		return NewValidationError("invalid_url", "destination URL must be absolute: "+raw)
	}
	return nil
}

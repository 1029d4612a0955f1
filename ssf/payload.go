package ssf

import (
	"fmt"
	"time"
)

// CAEP and RISC event type URIs.
const (
	EventSessionRevoked         = "https://schemas.openid.net/secevent/caep/event-type/session-revoked"
	EventTokenClaimsChange      = "https://schemas.openid.net/secevent/caep/event-type/token-claims-change"
	EventCredentialChange       = "https://schemas.openid.net/secevent/caep/event-type/credential-change"
	EventAssuranceLevelChange   = "https://schemas.openid.net/secevent/caep/event-type/assurance-level-change"
	EventDeviceComplianceChange = "https://schemas.openid.net/secevent/caep/event-type/device-compliance-change"
	EventAccountDisabled        = "https://schemas.openid.net/secevent/risc/event-type/account-disabled"
	EventAccountEnabled         = "https://schemas.openid.net/secevent/risc/event-type/account-enabled"
	EventVerification           = "https://schemas.openid.net/secevent/ssf/event-type/verification"
)

// Event is one security event to be signed and delivered.
type Event struct {
	// Type is the event type URI.
	Type string
	// Subject becomes the sub_id claim, e.g. EmailSubject("a@b.com").
	Subject map[string]any
	// Claims are the event-specific claims nested under the type URI.
	Claims map[string]any
	// Audience overrides the client audience.
	Audience string
	// TxnID becomes the txn claim.
	TxnID string
}

// EmailSubject returns an email-format subject identifier.
func EmailSubject(email string) map[string]any {
	return map[string]any{"format": "email", "email": email}
}

// IssSubSubject returns an iss_sub-format subject identifier.
func IssSubSubject(iss, sub string) map[string]any {
	return map[string]any{"format": "iss_sub", "iss": iss, "sub": sub}
}

// BuildClaims assembles the SET claim set for ev. Empty issuer and audience
// are left out.
func BuildClaims(ev Event, issuer, audience string, now time.Time, jti string) (map[string]any, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}

	eventClaims := make(map[string]any, len(ev.Claims))
	for k, v := range ev.Claims {
		eventClaims[k] = v
	}

	claims := map[string]any{
		"iat":    now.Unix(),
		"jti":    jti,
		"events": map[string]any{ev.Type: eventClaims},
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if len(ev.Subject) > 0 {
		claims["sub_id"] = ev.Subject
	}
	if ev.TxnID != "" {
		claims["txn"] = ev.TxnID
	}
	return claims, nil
}

// Package identity models the caller of an invocation. Tokens are issued
// and verified upstream by the identity gateway; this package only decodes
// claims from a bearer token it is handed.
package identity

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Tier is the subscription tier attached to a caller.
type Tier string

const (
	// TierFree callers can use stdio/stream/direct servers but not the
	// managed model backend.
	TierFree Tier = "free"
	// TierPro callers are entitled to the managed model backend.
	TierPro Tier = "pro"
	// TierEnterprise callers are entitled to the managed model backend.
	TierEnterprise Tier = "enterprise"
)

// Caller identifies the requesting user.
type Caller struct {
	// Subject is the stable user identifier (the token's sub claim).
	Subject string

	// Email is informational, used in audit events.
	Email string

	// Tier gates access to the managed model backend.
	Tier Tier
}

// EntitledToModelBackend reports whether the caller may invoke the managed
// model backend.
func (c *Caller) EntitledToModelBackend() bool {
	if c == nil {
		return false
	}
	return c.Tier == TierPro || c.Tier == TierEnterprise
}

// FromBearerToken decodes caller identity from a bearer token's claims.
// The signature is NOT verified here: the gateway in front of this client
// has already validated the token, and re-verification would require the
// issuer's JWKS which this core does not hold.
func FromBearerToken(token string) (*Caller, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return nil, fmt.Errorf("empty bearer token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	caller := &Caller{
		Subject: sub,
		Tier:    TierFree,
	}

	if email, ok := claims["email"].(string); ok {
		caller.Email = email
	}

	// Cognito-style custom attribute; plain "tier" accepted as fallback.
	if tier, ok := claims["custom:tier"].(string); ok && tier != "" {
		caller.Tier = Tier(strings.ToLower(tier))
	} else if tier, ok := claims["tier"].(string); ok && tier != "" {
		caller.Tier = Tier(strings.ToLower(tier))
	}

	return caller, nil
}

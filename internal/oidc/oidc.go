// Package oidc verifies Keycloak-issued ID tokens against the realm's
// published signing keys.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/permitflow/go-services/pkg/middleware"
)

// Verifier checks ID tokens against the issuer's discovery document. It
// satisfies middleware.Verifier.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier runs OIDC discovery against the issuer and prepares a verifier
// for tokens minted for clientID. Discovery needs the issuer reachable, so
// callers treat failure as "Keycloak not available" rather than fatal.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider %s: %w", issuer, err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// Verify validates signature, issuer, audience and expiry.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

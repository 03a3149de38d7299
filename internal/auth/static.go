// Package auth provides admin authorization backed by a static identity list
// from configuration.
package auth

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// StaticAuthorizer authorizes admin operations against a fixed set of
// identities loaded at startup. Membership never changes at runtime; a config
// change requires a restart.
type StaticAuthorizer struct {
	admins map[string]struct{}
}

var _ domain.Authorizer = (*StaticAuthorizer)(nil)

// NewStaticAuthorizer creates an authorizer from the given identities.
func NewStaticAuthorizer(identities []string) *StaticAuthorizer {
	admins := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &StaticAuthorizer{admins: admins}
}

// RequireAdmin fails with ErrUnauthorized unless the identity is a configured
// admin.
func (a *StaticAuthorizer) RequireAdmin(_ context.Context, identity string) error {
	if _, ok := a.admins[identity]; !ok {
		return fmt.Errorf("%w: %q is not an admin", domain.ErrUnauthorized, identity)
	}
	return nil
}

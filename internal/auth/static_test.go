package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

func TestStaticAuthorizer(t *testing.T) {
	a := NewStaticAuthorizer([]string{"root", "", "ops"})
	ctx := context.Background()

	if err := a.RequireAdmin(ctx, "root"); err != nil {
		t.Errorf("root: %v", err)
	}
	if err := a.RequireAdmin(ctx, "ops"); err != nil {
		t.Errorf("ops: %v", err)
	}
	if err := a.RequireAdmin(ctx, "mallory"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("mallory: got %v, want ErrUnauthorized", err)
	}
	// The empty identity is never an admin, even though the config slice
	// contained an empty entry.
	if err := a.RequireAdmin(ctx, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("empty identity: got %v, want ErrUnauthorized", err)
	}
}

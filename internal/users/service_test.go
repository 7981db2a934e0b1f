package users

import (
	"context"
	"testing"
	"time"

	"github.com/permitflow/go-services/internal/models"
)

// fakeRepo keeps users by sub and stamps stored records the way the Mongo
// repository does.
type fakeRepo struct {
	stored map[string]*models.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stored: make(map[string]*models.User)}
}

func (f *fakeRepo) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	rec, ok := f.stored[u.Sub]
	if !ok {
		rec = &models.User{ID: "id-" + u.Sub, Sub: u.Sub, CreatedAt: now}
		f.stored[u.Sub] = rec
	}
	rec.Email = u.Email
	rec.Name = u.Name
	rec.Role = u.Role
	rec.UpdatedAt = now
	out := *rec
	return &out, nil
}

func (f *fakeRepo) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	rec, ok := f.stored[sub]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func TestUpsertFromClaims(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	u, err := svc.UpsertFromClaims(ctx, map[string]interface{}{
		"sub":   "sub-123",
		"email": "x@example.com",
		"name":  "X User",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil {
		t.Fatal("expected user, got nil")
	}
	if u.Sub != "sub-123" || u.Email != "x@example.com" || u.Name != "X User" {
		t.Fatalf("claims not mirrored: %+v", u)
	}
	if u.ID == "" {
		t.Fatal("expected repository to assign an ID")
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps, got created=%v updated=%v", u.CreatedAt, u.UpdatedAt)
	}
}

func TestUpsertFromClaimsKeepsCreatedAt(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	first, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"sub": "sub-1", "name": "Old Name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"sub": "sub-1", "name": "New Name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Name != "New Name" {
		t.Fatalf("profile not refreshed: %+v", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("createdAt moved on re-login: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestUpsertFromClaimsMissingSub(t *testing.T) {
	svc := NewService(newFakeRepo())
	u, err := svc.UpsertFromClaims(context.Background(), map[string]interface{}{"email": "y@e.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil user when sub missing, got %+v", u)
	}
}

func TestGetBySub(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.UpsertFromClaims(ctx, map[string]interface{}{"sub": "sub-7", "name": "Seven"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := svc.GetBySub(ctx, "sub-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.Name != "Seven" {
		t.Fatalf("unexpected lookup result: %+v", u)
	}

	missing, err := svc.GetBySub(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown sub, got %+v", missing)
	}
}

func TestRoleFromClaims(t *testing.T) {
	// flat role claim wins
	got := RoleFromClaims(map[string]interface{}{"role": models.RoleVerifier})
	if got != models.RoleVerifier {
		t.Fatalf("expected verifier, got %q", got)
	}

	// Keycloak realm_access fallback, ignoring realm housekeeping roles
	got = RoleFromClaims(map[string]interface{}{
		"realm_access": map[string]interface{}{
			"roles": []interface{}{"offline_access", "uma_authorization", models.RoleBilling},
		},
	})
	if got != models.RoleBilling {
		t.Fatalf("expected billing, got %q", got)
	}

	// no recognized role => empty
	got = RoleFromClaims(map[string]interface{}{
		"realm_access": map[string]interface{}{"roles": []interface{}{"offline_access"}},
	})
	if got != "" {
		t.Fatalf("expected empty role, got %q", got)
	}
}

func TestUpsertFromClaimsCarriesRole(t *testing.T) {
	svc := NewService(newFakeRepo())
	u, err := svc.UpsertFromClaims(context.Background(), map[string]interface{}{
		"sub":  "sub-9",
		"role": models.RoleCoordinator,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != models.RoleCoordinator {
		t.Fatalf("unexpected role: %q", u.Role)
	}
}

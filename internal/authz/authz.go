package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/permitflow/go-services/internal/models"
)

// ErrForbidden is returned when an identity lacks the capability for an
// action. Handlers map it straight to 403.
var ErrForbidden = errors.New("authz: forbidden")

// Action names a capability the permit workflow checks before a mutation.
type Action string

const (
	ActionManagePackages  Action = "packages:manage"
	ActionVerifyDocuments Action = "documents:verify"
	ActionMarkReady       Action = "packages:mark-ready"
	ActionSubmitBilling   Action = "packages:submit-billing"
	ActionExportPackages  Action = "packages:export"
	ActionManageDirectory Action = "directory:manage"
)

// Identity is the acting account as established by the auth middleware.
type Identity struct {
	Sub  string
	Name string
	Role string
}

// Authorizer decides whether an identity may perform an action.
// Implementations own the role model; the lifecycle code only consumes the
// decision and surfaces ErrForbidden unchanged.
type Authorizer interface {
	Can(ctx context.Context, id Identity, action Action) error
}

var roleGrants = map[string]map[Action]bool{
	models.RoleCoordinator: {
		ActionManagePackages:  true,
		ActionMarkReady:       true,
		ActionExportPackages:  true,
		ActionManageDirectory: true,
	},
	models.RoleVerifier: {
		ActionVerifyDocuments: true,
	},
	models.RoleBilling: {
		ActionSubmitBilling:  true,
		ActionExportPackages: true,
	},
}

// RoleAuthorizer grants actions from a static per-role table. Admins may do
// everything; unknown roles may do nothing.
type RoleAuthorizer struct{}

func NewRoleAuthorizer() *RoleAuthorizer { return &RoleAuthorizer{} }

func (a *RoleAuthorizer) Can(_ context.Context, id Identity, action Action) error {
	if id.Role == models.RoleAdmin {
		return nil
	}
	if roleGrants[id.Role][action] {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, id.Role, action)
}

// AllowAll grants every action. Used in development mode and tests where the
// role model is out of scope.
type AllowAll struct{}

func (AllowAll) Can(context.Context, Identity, Action) error { return nil }

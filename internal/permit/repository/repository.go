package repository

import (
	"context"
	"time"

	"github.com/permitflow/go-services/internal/permit"
)

// ListFilter narrows ListPackages. Zero values match everything.
type ListFilter struct {
	CustomerID string
	Status     permit.Status
}

// Repository is the storage surface for permit packages, their documents and
// billing submissions.
//
// TransitionStatus is a conditional update: it applies only when the package
// still has the expected from status and returns permit.ErrStatusConflict
// otherwise, so concurrent transitions resolve to exactly one winner.
// SubmitToBilling moves a ready_for_billing package to submitted_to_billing
// and appends the billing submission record in one atomic step; a package is
// never observable in one half of that state.
type Repository interface {
	CreatePackage(ctx context.Context, p *permit.Package) (string, error)
	GetPackage(ctx context.Context, id string) (*permit.Package, error)
	ListPackages(ctx context.Context, filter ListFilter) ([]*permit.Package, error)
	TransitionStatus(ctx context.Context, id string, from, to permit.Status, at time.Time, actor string) error

	CreateDocument(ctx context.Context, d *permit.Document) (string, error)
	GetDocument(ctx context.Context, id string) (*permit.Document, error)
	ListDocuments(ctx context.Context, packageID string) ([]*permit.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	SetDocumentVerification(ctx context.Context, id string, verified bool, actor string, at time.Time) (*permit.Document, error)
	ReplaceDocumentFile(ctx context.Context, id string, file permit.FileInfo, at time.Time) (*permit.Document, error)

	SubmitToBilling(ctx context.Context, id, actor string, at time.Time) (*permit.BillingSubmission, error)
	GetBillingSubmission(ctx context.Context, packageID string) (*permit.BillingSubmission, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/internal/billing"
	"github.com/permitflow/go-services/internal/export"
	"github.com/permitflow/go-services/internal/permit"
	"github.com/permitflow/go-services/internal/permit/repository"
	"github.com/permitflow/go-services/internal/requirements"
	"github.com/permitflow/go-services/internal/storage"
	"github.com/permitflow/go-services/pkg/logger"
	"github.com/permitflow/go-services/pkg/metrics"
)

const presignTTL = 15 * time.Minute

// CreatePackageInput carries the fields for a new permit package.
type CreatePackageInput struct {
	Title             string `json:"title" binding:"required"`
	PermitType        string `json:"permitType"`
	CustomerID        string `json:"customerId" binding:"required"`
	CountyID          string `json:"countyId"`
	ContractorID      string `json:"contractorId"`
	PropertyAddress   string `json:"propertyAddress"`
	OfflineSubmission bool   `json:"offlineSubmission"`
}

// FileUpload is an incoming document file.
type FileUpload struct {
	FileName    string
	SizeBytes   int64
	ContentType string
	Reader      io.Reader
}

// AttachDocumentInput adds a document to a package.
type AttachDocumentInput struct {
	PackageID     string
	Category      string
	RequirementID string
	File          FileUpload
}

// DocumentWithURL decorates a document with a presigned download URL when the
// object store can mint one.
type DocumentWithURL struct {
	*permit.Document
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// PackageDetail is the full read model for one package: the package, its
// documents, the applicable requirement checklist and the computed
// eligibility flag. Clients only ever read allDocsVerified; they never send
// it back.
type PackageDetail struct {
	Package              *permit.Package           `json:"package"`
	Documents            []*DocumentWithURL        `json:"documents"`
	Requirements         []*permit.Requirement     `json:"requirements"`
	AllDocsVerified      bool                      `json:"allDocsVerified"`
	MissingCategories    []string                  `json:"missingCategories,omitempty"`
	UnverifiedCategories []string                  `json:"unverifiedCategories,omitempty"`
	BillingSubmission    *permit.BillingSubmission `json:"billingSubmission,omitempty"`
}

// Service exposes the permit package operations used by the handler layer.
// Transition methods return the package observed at decision time, so a
// caller that loses a race still sees the state that beat it (paired with
// permit.ErrAlreadyInState).
type Service interface {
	CreatePackage(ctx context.Context, actor authz.Identity, in CreatePackageInput) (*permit.Package, error)
	GetPackage(ctx context.Context, id string) (*PackageDetail, error)
	ListPackages(ctx context.Context, filter repository.ListFilter) ([]*permit.Package, error)
	StartBuilding(ctx context.Context, actor authz.Identity, packageID string) (*permit.Package, error)
	AttachDocument(ctx context.Context, actor authz.Identity, in AttachDocumentInput) (*permit.Document, error)
	ReplaceDocumentFile(ctx context.Context, actor authz.Identity, documentID string, file FileUpload) (*permit.Document, error)
	ListDocuments(ctx context.Context, packageID string) ([]*permit.Document, error)
	DeleteDocument(ctx context.Context, actor authz.Identity, documentID string) error
	SetDocumentVerification(ctx context.Context, actor authz.Identity, documentID string, verified bool) (*permit.Document, error)
	MarkReadyForBilling(ctx context.Context, actor authz.Identity, packageID string) (*permit.Package, error)
	SubmitToBilling(ctx context.Context, actor authz.Identity, packageID string) (*permit.Package, *permit.BillingSubmission, error)
	ExportPackage(ctx context.Context, actor authz.Identity, packageID string, w io.Writer) error
}

// Options wires the service's collaborators. Repo, Files, Checklist and
// Authorizer are required. BillingMongoURI enables the billing handoff
// snapshot on submission; leave it empty when no billing consumer runs.
type Options struct {
	Repo            repository.Repository
	Files           storage.DocumentStore
	Checklist       requirements.Source
	Authorizer      authz.Authorizer
	BillingMongoURI string
	BillingDatabase string
}

type permitService struct {
	repo        repository.Repository
	files       storage.DocumentStore
	checklist   requirements.Source
	authz       authz.Authorizer
	billingURI  string
	billingDB   string
}

// New builds the permit service.
func New(opts Options) Service {
	return &permitService{
		repo:       opts.Repo,
		files:      opts.Files,
		checklist:  opts.Checklist,
		authz:      opts.Authorizer,
		billingURI: opts.BillingMongoURI,
		billingDB:  opts.BillingDatabase,
	}
}

func (s *permitService) CreatePackage(ctx context.Context, actor authz.Identity, in CreatePackageInput) (*permit.Package, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionManagePackages); err != nil {
		return nil, err
	}
	p := &permit.Package{
		CustomerID:        in.CustomerID,
		CountyID:          in.CountyID,
		ContractorID:      in.ContractorID,
		Title:             in.Title,
		PermitType:        in.PermitType,
		PropertyAddress:   in.PropertyAddress,
		OfflineSubmission: in.OfflineSubmission,
		Status:            permit.StatusDraft,
	}
	id, err := s.repo.CreatePackage(ctx, p)
	if err != nil {
		return nil, err
	}
	logger.Infof("package %s created for customer %s", id, in.CustomerID)
	return s.repo.GetPackage(ctx, id)
}

func (s *permitService) GetPackage(ctx context.Context, id string) (*PackageDetail, error) {
	pkg, err := s.repo.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	reqs, err := s.checklist.RequirementsFor(ctx, pkg.CountyID, pkg.PermitType)
	if err != nil {
		return nil, err
	}
	elig := permit.EvaluateBillingReadiness(docs, reqs)

	detail := &PackageDetail{
		Package:              pkg,
		Documents:            make([]*DocumentWithURL, 0, len(docs)),
		Requirements:         reqs,
		AllDocsVerified:      elig.Eligible,
		MissingCategories:    elig.MissingCategories,
		UnverifiedCategories: elig.UnverifiedCategories,
	}
	for _, d := range docs {
		dw := &DocumentWithURL{Document: d}
		if d.StorageKey != "" {
			if url, err := s.files.GetPresignedURL(ctx, d.StorageKey, presignTTL); err == nil {
				dw.DownloadURL = url
			}
		}
		detail.Documents = append(detail.Documents, dw)
	}
	if pkg.Status == permit.StatusSubmittedToBilling {
		if sub, err := s.repo.GetBillingSubmission(ctx, id); err == nil {
			detail.BillingSubmission = sub
		}
	}
	return detail, nil
}

func (s *permitService) ListPackages(ctx context.Context, filter repository.ListFilter) ([]*permit.Package, error) {
	return s.repo.ListPackages(ctx, filter)
}

func (s *permitService) StartBuilding(ctx context.Context, actor authz.Identity, packageID string) (*permit.Package, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionManagePackages); err != nil {
		return nil, err
	}
	pkg, err := s.repo.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.Status != permit.StatusDraft {
		return pkg, permit.ErrAlreadyInState
	}
	err = s.repo.TransitionStatus(ctx, packageID, permit.StatusDraft, permit.StatusBuilding, time.Now().UTC(), actor.Sub)
	if err != nil && !errors.Is(err, permit.ErrStatusConflict) {
		return nil, err
	}
	pkg, getErr := s.repo.GetPackage(ctx, packageID)
	if getErr != nil {
		return nil, getErr
	}
	if errors.Is(err, permit.ErrStatusConflict) {
		// another caller started (or advanced) the package first
		return pkg, permit.ErrAlreadyInState
	}
	metrics.PackageTransitions.WithLabelValues(string(permit.StatusBuilding)).Inc()
	return pkg, nil
}

func (s *permitService) AttachDocument(ctx context.Context, actor authz.Identity, in AttachDocumentInput) (*permit.Document, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionManagePackages); err != nil {
		return nil, err
	}
	pkg, err := s.repo.GetPackage(ctx, in.PackageID)
	if err != nil {
		return nil, err
	}

	// upload first, record second; a failed insert orphans an object (cleaned
	// up below) instead of leaving a record that points at nothing
	docID := uuid.NewString()
	key := storage.DocumentKey(in.PackageID, docID, in.File.FileName)
	if err := s.files.UploadFile(ctx, key, in.File.Reader, in.File.SizeBytes, in.File.ContentType); err != nil {
		return nil, fmt.Errorf("store document file: %w", err)
	}

	doc := &permit.Document{
		ID:            docID,
		PackageID:     in.PackageID,
		RequirementID: in.RequirementID,
		Category:      in.Category,
		FileName:      in.File.FileName,
		SizeBytes:     in.File.SizeBytes,
		ContentType:   in.File.ContentType,
		StorageKey:    key,
		UploadedBy:    actor.Sub,
	}
	id, err := s.repo.CreateDocument(ctx, doc)
	if err != nil {
		if delErr := s.files.DeleteFile(ctx, key); delErr != nil {
			logger.Warnf("cleanup of object %s after failed insert: %v", key, delErr)
		}
		return nil, err
	}

	// the first attached document moves a draft package into building;
	// losing this race to a concurrent uploader is benign
	if pkg.Status == permit.StatusDraft {
		err := s.repo.TransitionStatus(ctx, in.PackageID, permit.StatusDraft, permit.StatusBuilding, time.Now().UTC(), actor.Sub)
		switch {
		case err == nil:
			metrics.PackageTransitions.WithLabelValues(string(permit.StatusBuilding)).Inc()
		case errors.Is(err, permit.ErrStatusConflict):
		default:
			logger.Warnf("auto-start of package %s after attach: %v", in.PackageID, err)
		}
	}
	logger.Infof("document %s (%s) attached to package %s", id, in.Category, in.PackageID)
	return doc, nil
}

func (s *permitService) ReplaceDocumentFile(ctx context.Context, actor authz.Identity, documentID string, file FileUpload) (*permit.Document, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionManagePackages); err != nil {
		return nil, err
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	key := storage.DocumentKey(doc.PackageID, doc.ID, file.FileName)
	if err := s.files.UploadFile(ctx, key, file.Reader, file.SizeBytes, file.ContentType); err != nil {
		return nil, fmt.Errorf("store document file: %w", err)
	}
	updated, err := s.repo.ReplaceDocumentFile(ctx, documentID, permit.FileInfo{
		FileName:    file.FileName,
		SizeBytes:   file.SizeBytes,
		ContentType: file.ContentType,
		StorageKey:  key,
	}, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if doc.StorageKey != "" && doc.StorageKey != key {
		if err := s.files.DeleteFile(ctx, doc.StorageKey); err != nil {
			logger.Warnf("delete replaced object %s: %v", doc.StorageKey, err)
		}
	}
	logger.Infof("document %s file replaced, verification reset", documentID)
	return updated, nil
}

func (s *permitService) ListDocuments(ctx context.Context, packageID string) ([]*permit.Document, error) {
	if _, err := s.repo.GetPackage(ctx, packageID); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, packageID)
}

func (s *permitService) DeleteDocument(ctx context.Context, actor authz.Identity, documentID string) error {
	if err := s.authz.Can(ctx, actor, authz.ActionManagePackages); err != nil {
		return err
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := s.files.DeleteFile(ctx, doc.StorageKey); err != nil {
			logger.Warnf("delete object %s: %v", doc.StorageKey, err)
		}
	}
	// removing documents never downgrades package status; the gate only
	// re-checks on the next explicit transition attempt
	return nil
}

func (s *permitService) SetDocumentVerification(ctx context.Context, actor authz.Identity, documentID string, verified bool) (*permit.Document, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionVerifyDocuments); err != nil {
		return nil, err
	}
	doc, err := s.repo.SetDocumentVerification(ctx, documentID, verified, actor.Sub, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	action := "unverified"
	if verified {
		action = "verified"
	}
	metrics.DocumentVerifications.WithLabelValues(action).Inc()
	logger.Infof("document %s %s by %s", documentID, action, actor.Sub)
	return doc, nil
}

// MarkReadyForBilling is the billing-readiness gate. The conditional update
// makes racing callers resolve to one winner; the loser re-reads once and
// reports what it saw instead of retrying blindly.
func (s *permitService) MarkReadyForBilling(ctx context.Context, actor authz.Identity, packageID string) (*permit.Package, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionMarkReady); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		pkg, err := s.repo.GetPackage(ctx, packageID)
		if err != nil {
			return nil, err
		}
		if pkg.Status.AtOrPast(permit.StatusReadyForBilling) {
			return pkg, permit.ErrAlreadyInState
		}
		if pkg.Status == permit.StatusDraft {
			metrics.TransitionRejections.WithLabelValues(string(permit.ReasonNotBuilding)).Inc()
			return nil, &permit.PreconditionError{Reason: permit.ReasonNotBuilding}
		}

		docs, err := s.repo.ListDocuments(ctx, packageID)
		if err != nil {
			return nil, err
		}
		reqs, err := s.checklist.RequirementsFor(ctx, pkg.CountyID, pkg.PermitType)
		if err != nil {
			return nil, err
		}
		if elig := permit.EvaluateBillingReadiness(docs, reqs); !elig.Eligible {
			metrics.TransitionRejections.WithLabelValues(string(elig.Reason)).Inc()
			return nil, permit.NewPreconditionError(elig)
		}

		err = s.repo.TransitionStatus(ctx, packageID, permit.StatusBuilding, permit.StatusReadyForBilling, time.Now().UTC(), actor.Sub)
		if err == nil {
			metrics.PackageTransitions.WithLabelValues(string(permit.StatusReadyForBilling)).Inc()
			logger.Infof("package %s marked ready for billing by %s", packageID, actor.Sub)
			return s.repo.GetPackage(ctx, packageID)
		}
		if !errors.Is(err, permit.ErrStatusConflict) {
			return nil, err
		}
		// lost the conditional update; loop once to observe the state that won
	}
	return nil, fmt.Errorf("resolve ready-for-billing transition: %w", permit.ErrStatusConflict)
}

func (s *permitService) SubmitToBilling(ctx context.Context, actor authz.Identity, packageID string) (*permit.Package, *permit.BillingSubmission, error) {
	if err := s.authz.Can(ctx, actor, authz.ActionSubmitBilling); err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		pkg, err := s.repo.GetPackage(ctx, packageID)
		if err != nil {
			return nil, nil, err
		}
		if pkg.Status == permit.StatusSubmittedToBilling {
			return pkg, nil, permit.ErrAlreadyInState
		}
		if pkg.Status != permit.StatusReadyForBilling {
			metrics.TransitionRejections.WithLabelValues(string(permit.ReasonNotReadyForBilling)).Inc()
			return nil, nil, &permit.PreconditionError{Reason: permit.ReasonNotReadyForBilling}
		}

		sub, err := s.repo.SubmitToBilling(ctx, packageID, actor.Sub, time.Now().UTC())
		if err == nil {
			metrics.PackageTransitions.WithLabelValues(string(permit.StatusSubmittedToBilling)).Inc()
			metrics.BillingSubmissions.Inc()
			logger.Infof("package %s submitted to billing by %s (submission %s)", packageID, actor.Sub, sub.ID)
			s.writeBillingHandoff(ctx, pkg, sub)
			updated, err := s.repo.GetPackage(ctx, packageID)
			if err != nil {
				return nil, nil, err
			}
			return updated, sub, nil
		}
		if !errors.Is(err, permit.ErrStatusConflict) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("resolve billing submission: %w", permit.ErrStatusConflict)
}

// writeBillingHandoff publishes the snapshot the billing consumer reads.
// Best effort: the submission record is already durable, so a failed handoff
// write only warns.
func (s *permitService) writeBillingHandoff(ctx context.Context, pkg *permit.Package, sub *permit.BillingSubmission) {
	if s.billingURI == "" {
		return
	}
	docs, err := s.repo.ListDocuments(ctx, pkg.ID)
	if err != nil {
		logger.Warnf("billing handoff for %s: list documents: %v", pkg.ID, err)
		return
	}
	h := &billing.Handoff{
		SubmissionID: sub.ID,
		PackageID:    pkg.ID,
		CustomerID:   pkg.CustomerID,
		CountyID:     pkg.CountyID,
		Title:        pkg.Title,
		PermitType:   pkg.PermitType,
		SubmittedBy:  sub.SubmittedBy,
		SubmittedAt:  sub.SubmittedAt,
	}
	for _, d := range docs {
		h.Documents = append(h.Documents, billing.HandoffDocument{
			DocumentID: d.ID,
			Category:   d.Category,
			FileName:   d.FileName,
			StorageKey: d.StorageKey,
		})
	}
	if err := billing.SaveHandoff(ctx, s.billingURI, s.billingDB, h); err != nil {
		logger.Warnf("billing handoff for %s: %v", pkg.ID, err)
	}
}

func (s *permitService) ExportPackage(ctx context.Context, actor authz.Identity, packageID string, w io.Writer) error {
	if err := s.authz.Can(ctx, actor, authz.ActionExportPackages); err != nil {
		return err
	}
	pkg, err := s.repo.GetPackage(ctx, packageID)
	if err != nil {
		return err
	}
	docs, err := s.repo.ListDocuments(ctx, packageID)
	if err != nil {
		return err
	}
	return export.NewBundler(s.files).WritePackage(ctx, w, pkg, docs)
}

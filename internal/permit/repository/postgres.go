package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/permitflow/go-services/internal/permit"
)

// PostgresRepo implements Repository on PostgreSQL. Transitions are
// conditional UPDATEs guarded by the expected current status, and
// SubmitToBilling wraps the status change and the submission insert in a
// single transaction.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS permit_packages (
	id                      TEXT PRIMARY KEY,
	customer_id             TEXT NOT NULL,
	county_id               TEXT NOT NULL DEFAULT '',
	contractor_id           TEXT NOT NULL DEFAULT '',
	title                   TEXT NOT NULL,
	permit_type             TEXT NOT NULL DEFAULT '',
	property_address        TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL,
	offline_submission      BOOLEAN NOT NULL DEFAULT FALSE,
	ready_for_billing_at    TIMESTAMPTZ,
	ready_for_billing_by    TEXT NOT NULL DEFAULT '',
	submitted_to_billing_at TIMESTAMPTZ,
	submitted_to_billing_by TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS permit_documents (
	id                TEXT PRIMARY KEY,
	package_id        TEXT NOT NULL REFERENCES permit_packages(id) ON DELETE CASCADE,
	requirement_id    TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	file_name         TEXT NOT NULL,
	size_bytes        BIGINT NOT NULL DEFAULT 0,
	content_type      TEXT NOT NULL DEFAULT '',
	storage_key       TEXT NOT NULL DEFAULT '',
	uploaded_by       TEXT NOT NULL DEFAULT '',
	verified_complete BOOLEAN NOT NULL DEFAULT FALSE,
	verified_by       TEXT NOT NULL DEFAULT '',
	verified_at       TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permit_documents_package ON permit_documents (package_id);

CREATE TABLE IF NOT EXISTS billing_submissions (
	id           TEXT PRIMARY KEY,
	package_id   TEXT NOT NULL UNIQUE REFERENCES permit_packages(id),
	submitted_by TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables when they do not exist yet.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const packageColumns = `id, customer_id, county_id, contractor_id, title, permit_type,
	property_address, status, offline_submission,
	ready_for_billing_at, ready_for_billing_by,
	submitted_to_billing_at, submitted_to_billing_by,
	created_at, updated_at`

func scanPackage(row interface{ Scan(...any) error }) (*permit.Package, error) {
	var p permit.Package
	var readyAt, submittedAt sql.NullTime
	err := row.Scan(&p.ID, &p.CustomerID, &p.CountyID, &p.ContractorID, &p.Title, &p.PermitType,
		&p.PropertyAddress, &p.Status, &p.OfflineSubmission,
		&readyAt, &p.ReadyForBillingBy,
		&submittedAt, &p.SubmittedToBillingBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if readyAt.Valid {
		p.ReadyForBillingAt = &readyAt.Time
	}
	if submittedAt.Valid {
		p.SubmittedToBillingAt = &submittedAt.Time
	}
	return &p, nil
}

func (r *PostgresRepo) CreatePackage(ctx context.Context, p *permit.Package) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = permit.StatusDraft
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permit_packages (id, customer_id, county_id, contractor_id, title, permit_type,
			property_address, status, offline_submission, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.CustomerID, p.CountyID, p.ContractorID, p.Title, p.PermitType,
		p.PropertyAddress, p.Status, p.OfflineSubmission, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert package: %w", err)
	}
	return p.ID, nil
}

func (r *PostgresRepo) GetPackage(ctx context.Context, id string) (*permit.Package, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM permit_packages WHERE id = $1`, id)
	p, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, permit.ErrNotFound
	}
	return p, err
}

func (r *PostgresRepo) ListPackages(ctx context.Context, filter ListFilter) ([]*permit.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM permit_packages WHERE ($1 = '' OR customer_id = $1) AND ($2 = '' OR status = $2) ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, filter.CustomerID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*permit.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TransitionStatus(ctx context.Context, id string, from, to permit.Status, at time.Time, actor string) error {
	var res sql.Result
	var err error
	switch to {
	case permit.StatusReadyForBilling:
		res, err = r.db.ExecContext(ctx, `
			UPDATE permit_packages
			SET status = $1, updated_at = $2, ready_for_billing_at = $2, ready_for_billing_by = $3
			WHERE id = $4 AND status = $5`, to, at, actor, id, from)
	case permit.StatusSubmittedToBilling:
		res, err = r.db.ExecContext(ctx, `
			UPDATE permit_packages
			SET status = $1, updated_at = $2, submitted_to_billing_at = $2, submitted_to_billing_by = $3
			WHERE id = $4 AND status = $5`, to, at, actor, id, from)
	default:
		res, err = r.db.ExecContext(ctx, `
			UPDATE permit_packages
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4`, to, at, id, from)
	}
	if err != nil {
		return fmt.Errorf("transition package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

func (r *PostgresRepo) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permit_packages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return permit.ErrNotFound
	}
	return permit.ErrStatusConflict
}

const documentColumns = `id, package_id, requirement_id, category, file_name, size_bytes,
	content_type, storage_key, uploaded_by, verified_complete, verified_by, verified_at,
	created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*permit.Document, error) {
	var d permit.Document
	var verifiedAt sql.NullTime
	err := row.Scan(&d.ID, &d.PackageID, &d.RequirementID, &d.Category, &d.FileName, &d.SizeBytes,
		&d.ContentType, &d.StorageKey, &d.UploadedBy, &d.VerifiedComplete, &d.VerifiedBy, &verifiedAt,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		d.VerifiedAt = &verifiedAt.Time
	}
	return &d, nil
}

func (r *PostgresRepo) CreateDocument(ctx context.Context, d *permit.Document) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permit_documents (id, package_id, requirement_id, category, file_name, size_bytes,
			content_type, storage_key, uploaded_by, verified_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.PackageID, d.RequirementID, d.Category, d.FileName, d.SizeBytes,
		d.ContentType, d.StorageKey, d.UploadedBy, d.VerifiedComplete, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		// the foreign key turns inserts against unknown packages into ErrNotFound
		if exists, checkErr := r.packageExists(ctx, d.PackageID); checkErr == nil && !exists {
			return "", permit.ErrNotFound
		}
		return "", fmt.Errorf("insert document: %w", err)
	}
	return d.ID, nil
}

func (r *PostgresRepo) packageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permit_packages WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) GetDocument(ctx context.Context, id string) (*permit.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM permit_documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, permit.ErrNotFound
	}
	return d, err
}

func (r *PostgresRepo) ListDocuments(ctx context.Context, packageID string) ([]*permit.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM permit_documents WHERE package_id = $1 ORDER BY created_at`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*permit.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permit_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return permit.ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) SetDocumentVerification(ctx context.Context, id string, verified bool, actor string, at time.Time) (*permit.Document, error) {
	var res sql.Result
	var err error
	if verified {
		res, err = r.db.ExecContext(ctx, `
			UPDATE permit_documents
			SET verified_complete = TRUE, verified_by = $1, verified_at = $2, updated_at = $2
			WHERE id = $3`, actor, at, id)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE permit_documents
			SET verified_complete = FALSE, verified_by = '', verified_at = NULL, updated_at = $1
			WHERE id = $2`, at, id)
	}
	if err != nil {
		return nil, fmt.Errorf("set verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, permit.ErrNotFound
	}
	return r.GetDocument(ctx, id)
}

func (r *PostgresRepo) ReplaceDocumentFile(ctx context.Context, id string, file permit.FileInfo, at time.Time) (*permit.Document, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE permit_documents
		SET file_name = $1, size_bytes = $2, content_type = $3, storage_key = $4,
			verified_complete = FALSE, verified_by = '', verified_at = NULL, updated_at = $5
		WHERE id = $6`,
		file.FileName, file.SizeBytes, file.ContentType, file.StorageKey, at, id)
	if err != nil {
		return nil, fmt.Errorf("replace document file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, permit.ErrNotFound
	}
	return r.GetDocument(ctx, id)
}

func (r *PostgresRepo) SubmitToBilling(ctx context.Context, id, actor string, at time.Time) (*permit.BillingSubmission, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE permit_packages
		SET status = $1, submitted_to_billing_at = $2, submitted_to_billing_by = $3, updated_at = $2
		WHERE id = $4 AND status = $5`,
		permit.StatusSubmittedToBilling, at, actor, id, permit.StatusReadyForBilling)
	if err != nil {
		return nil, fmt.Errorf("submit package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, r.classifyMiss(ctx, id)
	}

	sub := &permit.BillingSubmission{
		ID:          uuid.NewString(),
		PackageID:   id,
		SubmittedBy: actor,
		SubmittedAt: at,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO billing_submissions (id, package_id, submitted_by, submitted_at)
		VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.PackageID, sub.SubmittedBy, sub.SubmittedAt); err != nil {
		return nil, fmt.Errorf("insert billing submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}
	return sub, nil
}

func (r *PostgresRepo) GetBillingSubmission(ctx context.Context, packageID string) (*permit.BillingSubmission, error) {
	var s permit.BillingSubmission
	err := r.db.QueryRowContext(ctx, `
		SELECT id, package_id, submitted_by, submitted_at
		FROM billing_submissions WHERE package_id = $1`, packageID).
		Scan(&s.ID, &s.PackageID, &s.SubmittedBy, &s.SubmittedAt)
	if err == sql.ErrNoRows {
		return nil, permit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/permitflow/go-services/internal/permit"
	"github.com/permitflow/go-services/internal/storage"
)

// Bundler writes ZIP exports of permit packages: a manifest.json describing
// the package plus every stored document under documents/<category>/. Export
// is read-only; it never touches package state.
type Bundler struct {
	files storage.DocumentStore
}

func NewBundler(files storage.DocumentStore) *Bundler {
	return &Bundler{files: files}
}

type manifestDocument struct {
	ID               string     `json:"id"`
	Category         string     `json:"category"`
	FileName         string     `json:"fileName"`
	SizeBytes        int64      `json:"sizeBytes"`
	ContentType      string     `json:"contentType"`
	VerifiedComplete bool       `json:"verifiedComplete"`
	VerifiedBy       string     `json:"verifiedBy,omitempty"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty"`
	ArchivePath      string     `json:"archivePath,omitempty"`
}

type manifest struct {
	Package     *permit.Package    `json:"package"`
	Documents   []manifestDocument `json:"documents"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

func archivePath(d *permit.Document, used map[string]bool) string {
	p := fmt.Sprintf("documents/%s/%s", d.Category, d.FileName)
	if used[p] {
		p = fmt.Sprintf("documents/%s/%s_%s", d.Category, d.ID, d.FileName)
	}
	used[p] = true
	return p
}

// WritePackage streams the bundle to w. Documents without a stored object
// appear in the manifest only.
func (b *Bundler) WritePackage(ctx context.Context, w io.Writer, pkg *permit.Package, docs []*permit.Document) error {
	zw := zip.NewWriter(w)

	m := manifest{Package: pkg, Documents: make([]manifestDocument, 0, len(docs)), GeneratedAt: time.Now().UTC()}
	used := make(map[string]bool)

	for _, d := range docs {
		entry := manifestDocument{
			ID:               d.ID,
			Category:         d.Category,
			FileName:         d.FileName,
			SizeBytes:        d.SizeBytes,
			ContentType:      d.ContentType,
			VerifiedComplete: d.VerifiedComplete,
			VerifiedBy:       d.VerifiedBy,
			VerifiedAt:       d.VerifiedAt,
		}
		if d.StorageKey != "" {
			entry.ArchivePath = archivePath(d, used)
			if err := b.copyObject(ctx, zw, entry.ArchivePath, d.StorageKey); err != nil {
				zw.Close()
				return fmt.Errorf("export document %s: %w", d.ID, err)
			}
		}
		m.Documents = append(m.Documents, entry)
	}

	mw, err := zw.Create("manifest.json")
	if err != nil {
		zw.Close()
		return fmt.Errorf("create manifest: %w", err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		zw.Close()
		return fmt.Errorf("write manifest: %w", err)
	}

	return zw.Close()
}

func (b *Bundler) copyObject(ctx context.Context, zw *zip.Writer, entryPath, key string) error {
	rc, err := b.files.DownloadFile(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	f, err := zw.Create(entryPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, rc)
	return err
}

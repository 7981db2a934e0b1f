package handler

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/internal/permit"
	"github.com/permitflow/go-services/internal/permit/repository"
	"github.com/permitflow/go-services/internal/permit/service"
	"github.com/permitflow/go-services/pkg/logger"
	"github.com/permitflow/go-services/pkg/middleware"
)

const maxUploadBytes = 50 << 20

// permit packages collect scans and office documents; anything executable
// stays out
var allowedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".tif": true, ".tiff": true, ".doc": true, ".docx": true, ".txt": true,
}

// PermitHandler exposes the permit package API.
type PermitHandler struct {
	svc service.Service
}

func NewPermitHandler(svc service.Service) *PermitHandler {
	return &PermitHandler{svc: svc}
}

// Register mounts the permit routes on the given group (normally /api).
func (h *PermitHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/permits")
	p.POST("", h.CreatePackage)
	p.GET("", h.ListPackages)
	p.GET("/:id", h.GetPackage)
	p.POST("/:id/start", h.StartBuilding)
	p.POST("/:id/documents", h.AttachDocument)
	p.GET("/:id/documents", h.ListDocuments)
	p.PATCH("/:id/ready-for-billing", h.MarkReadyForBilling)
	p.PATCH("/:id/submit-to-billing", h.SubmitToBilling)
	p.GET("/:id/export", h.ExportPackage)

	d := rg.Group("/documents")
	d.POST("/:id/file", h.ReplaceDocumentFile)
	d.PATCH("/:id/verification", h.SetVerification)
	d.DELETE("/:id", h.DeleteDocument)
}

// writeError maps domain errors onto the wire. AlreadyInState is not an
// error shape; transition endpoints handle it inline.
func writeError(c *gin.Context, err error) {
	var pre *permit.PreconditionError
	switch {
	case errors.Is(err, permit.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, authz.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.As(err, &pre):
		body := gin.H{
			"error":   "precondition_failed",
			"reason":  pre.Reason,
			"message": strings.TrimPrefix(pre.Error(), "permit: "),
		}
		if len(pre.MissingCategories) > 0 {
			body["missingCategories"] = pre.MissingCategories
		}
		if len(pre.UnverifiedCategories) > 0 {
			body["unverifiedCategories"] = pre.UnverifiedCategories
		}
		c.JSON(http.StatusConflict, body)
	default:
		logger.Errorf("permit handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func (h *PermitHandler) CreatePackage(c *gin.Context) {
	var in service.CreatePackageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pkg, err := h.svc.CreatePackage(c.Request.Context(), middleware.Identity(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

func (h *PermitHandler) ListPackages(c *gin.Context) {
	filter := repository.ListFilter{
		CustomerID: c.Query("customerId"),
		Status:     permit.Status(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	list, err := h.svc.ListPackages(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permits": list, "count": len(list)})
}

func (h *PermitHandler) GetPackage(c *gin.Context) {
	detail, err := h.svc.GetPackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *PermitHandler) StartBuilding(c *gin.Context) {
	pkg, err := h.svc.StartBuilding(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if errors.Is(err, permit.ErrAlreadyInState) {
		c.JSON(http.StatusOK, gin.H{"transitioned": false, "reason": "already_in_state", "package": pkg})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitioned": true, "package": pkg})
}

func (h *PermitHandler) AttachDocument(c *gin.Context) {
	upload, f, ok := h.formFile(c)
	if !ok {
		return
	}
	defer f.Close()

	doc, err := h.svc.AttachDocument(c.Request.Context(), middleware.Identity(c), service.AttachDocumentInput{
		PackageID:     c.Param("id"),
		Category:      c.PostForm("category"),
		RequirementID: c.PostForm("requirementId"),
		File:          upload,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *PermitHandler) ReplaceDocumentFile(c *gin.Context) {
	upload, f, ok := h.formFile(c)
	if !ok {
		return
	}
	defer f.Close()

	doc, err := h.svc.ReplaceDocumentFile(c.Request.Context(), middleware.Identity(c), c.Param("id"), upload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// formFile reads and validates the multipart "file" field. On failure it has
// already written the 4xx response. The caller closes the returned file.
func (h *PermitHandler) formFile(c *gin.Context) (service.FileUpload, multipart.File, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return service.FileUpload{}, nil, false
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_too_large"})
		return service.FileUpload{}, nil, false
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_file_type"})
		return service.FileUpload{}, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return service.FileUpload{}, nil, false
	}
	return service.FileUpload{
		FileName:    filepath.Base(fh.Filename),
		SizeBytes:   fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Reader:      f,
	}, f, true
}

func (h *PermitHandler) ListDocuments(c *gin.Context) {
	docs, err := h.svc.ListDocuments(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (h *PermitHandler) DeleteDocument(c *gin.Context) {
	if err := h.svc.DeleteDocument(c.Request.Context(), middleware.Identity(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PermitHandler) SetVerification(c *gin.Context) {
	var req struct {
		Verified *bool `json:"verified" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "verified field required"})
		return
	}
	doc, err := h.svc.SetDocumentVerification(c.Request.Context(), middleware.Identity(c), c.Param("id"), *req.Verified)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *PermitHandler) MarkReadyForBilling(c *gin.Context) {
	pkg, err := h.svc.MarkReadyForBilling(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if errors.Is(err, permit.ErrAlreadyInState) {
		c.JSON(http.StatusOK, gin.H{"transitioned": false, "reason": "already_in_state", "package": pkg})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitioned": true, "package": pkg})
}

func (h *PermitHandler) SubmitToBilling(c *gin.Context) {
	pkg, sub, err := h.svc.SubmitToBilling(c.Request.Context(), middleware.Identity(c), c.Param("id"))
	if errors.Is(err, permit.ErrAlreadyInState) {
		c.JSON(http.StatusOK, gin.H{"transitioned": false, "reason": "already_in_state", "package": pkg})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitioned": true, "package": pkg, "submission": sub})
}

// ExportPackage bundles the package into a ZIP. The bundle is built in memory
// first so errors still produce a clean JSON response; packages hold a
// bounded set of scanned documents.
func (h *PermitHandler) ExportPackage(c *gin.Context) {
	id := c.Param("id")
	var buf bytes.Buffer
	if err := h.svc.ExportPackage(c.Request.Context(), middleware.Identity(c), id, &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "permit-"+id+".zip"))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

package handler

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/internal/models"
	"github.com/permitflow/go-services/internal/permit"
	"github.com/permitflow/go-services/internal/permit/repository"
	"github.com/permitflow/go-services/internal/permit/service"
	"github.com/permitflow/go-services/internal/requirements"
	"github.com/permitflow/go-services/internal/storage"
)

func newPermitService() service.Service {
	checklist := requirements.NewChecklist([]*permit.Requirement{
		{ID: "application", Category: "application", Label: "Permit Application", Mandatory: true},
		{ID: "site_survey", Category: "site_survey", Label: "Site Survey", Mandatory: true},
	})
	return service.New(service.Options{
		Repo:       repository.NewMemoryRepo(),
		Files:      storage.NewMemoryStore(),
		Checklist:  checklist,
		Authorizer: authz.NewRoleAuthorizer(),
	})
}

// mountAs builds a router whose requests all carry the given role, the way
// the auth middleware would populate claims for a logged-in user.
func mountAs(svc service.Service, role string) *gin.Engine {
	g := gin.New()
	g.Use(func(c *gin.Context) {
		c.Set("claims", map[string]interface{}{"sub": "user-" + role, "name": "Test User", "role": role})
	})
	NewPermitHandler(svc).Register(g.Group("/api"))
	return g
}

func uploadBody(t *testing.T, fields map[string]string, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &b, mw.FormDataContentType()
}

func doJSON(g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	g.ServeHTTP(w, req)
	return w
}

func TestPermitPackageLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newPermitService()
	coordinator := mountAs(svc, models.RoleCoordinator)
	verifier := mountAs(svc, models.RoleVerifier)
	biller := mountAs(svc, models.RoleBilling)

	// create
	w := doJSON(coordinator, http.MethodPost, "/api/permits",
		`{"title":"Solar install","customerId":"cust-1","permitType":"solar","countyId":"alameda"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var pkg permit.Package
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkg))
	require.NotEmpty(t, pkg.ID)
	require.Equal(t, permit.StatusDraft, pkg.Status)

	// attaching the first document moves the package into building
	body, ctype := uploadBody(t, map[string]string{"category": "application"}, "application.pdf", "form 480")
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/permits/"+pkg.ID+"/documents", body)
	req.Header.Set("Content-Type", ctype)
	coordinator.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var appDoc permit.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appDoc))
	require.Equal(t, "application", appDoc.Category)

	// ready-for-billing is rejected while the site survey is missing
	w = doJSON(coordinator, http.MethodPatch, "/api/permits/"+pkg.ID+"/ready-for-billing", "")
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		Error             string   `json:"error"`
		Reason            string   `json:"reason"`
		MissingCategories []string `json:"missingCategories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	require.Equal(t, "precondition_failed", conflict.Error)
	require.Equal(t, string(permit.ReasonMissingDocuments), conflict.Reason)
	require.Equal(t, []string{"site_survey"}, conflict.MissingCategories)

	body, ctype = uploadBody(t, map[string]string{"category": "site_survey"}, "survey.pdf", "plot plan")
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/permits/"+pkg.ID+"/documents", body)
	req.Header.Set("Content-Type", ctype)
	coordinator.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var surveyDoc permit.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &surveyDoc))

	// still blocked: nothing is verified yet
	w = doJSON(coordinator, http.MethodPatch, "/api/permits/"+pkg.ID+"/ready-for-billing", "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), string(permit.ReasonUnverifiedDocuments))

	// verification is the verifier's job
	w = doJSON(verifier, http.MethodPatch, "/api/documents/"+appDoc.ID+"/verification", `{"verified":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(verifier, http.MethodPatch, "/api/documents/"+surveyDoc.ID+"/verification", `{"verified":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(coordinator, http.MethodPatch, "/api/permits/"+pkg.ID+"/ready-for-billing", "")
	require.Equal(t, http.StatusOK, w.Code)
	var transition struct {
		Transitioned bool           `json:"transitioned"`
		Reason       string         `json:"reason"`
		Package      permit.Package `json:"package"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transition))
	require.True(t, transition.Transitioned)
	require.Equal(t, permit.StatusReadyForBilling, transition.Package.Status)
	require.NotNil(t, transition.Package.ReadyForBillingAt)

	// a second trigger reports the package already moved
	w = doJSON(coordinator, http.MethodPatch, "/api/permits/"+pkg.ID+"/ready-for-billing", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transition))
	require.False(t, transition.Transitioned)
	require.Equal(t, "already_in_state", transition.Reason)

	// billing picks it up
	w = doJSON(biller, http.MethodPatch, "/api/permits/"+pkg.ID+"/submit-to-billing", "")
	require.Equal(t, http.StatusOK, w.Code)
	var submitted struct {
		Transitioned bool                     `json:"transitioned"`
		Package      permit.Package           `json:"package"`
		Submission   *permit.BillingSubmission `json:"submission"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.True(t, submitted.Transitioned)
	require.Equal(t, permit.StatusSubmittedToBilling, submitted.Package.Status)
	require.NotNil(t, submitted.Submission)
	require.Equal(t, pkg.ID, submitted.Submission.PackageID)

	// detail view carries documents and the submission record
	w = doJSON(coordinator, http.MethodGet, "/api/permits/"+pkg.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.PackageDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Documents, 2)
	require.NotNil(t, detail.BillingSubmission)
}

func TestPermitHandlerListFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newPermitService()
	g := mountAs(svc, models.RoleCoordinator)

	w := doJSON(g, http.MethodPost, "/api/permits", `{"title":"One","customerId":"cust-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(g, http.MethodPost, "/api/permits", `{"title":"Two","customerId":"cust-2"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(g, http.MethodGet, "/api/permits?customerId=cust-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Permits []*permit.Package `json:"permits"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Two", list.Permits[0].Title)

	w = doJSON(g, http.MethodGet, "/api/permits?status=bogus", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermitHandlerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newPermitService()
	coordinator := mountAs(svc, models.RoleCoordinator)
	verifier := mountAs(svc, models.RoleVerifier)

	// unknown package
	w := doJSON(coordinator, http.MethodGet, "/api/permits/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_found")

	// missing required fields
	w = doJSON(coordinator, http.MethodPost, "/api/permits", `{"title":"No customer"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// verifiers cannot create packages
	w = doJSON(verifier, http.MethodPost, "/api/permits", `{"title":"X","customerId":"cust-1"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "forbidden")

	// ready-for-billing on a draft reports the not-building reason
	w = doJSON(coordinator, http.MethodPost, "/api/permits", `{"title":"Draft","customerId":"cust-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var pkg permit.Package
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkg))
	w = doJSON(coordinator, http.MethodPatch, "/api/permits/"+pkg.ID+"/ready-for-billing", "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), string(permit.ReasonNotBuilding))
}

func TestPermitHandlerUploadValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newPermitService()
	g := mountAs(svc, models.RoleCoordinator)

	w := doJSON(g, http.MethodPost, "/api/permits", `{"title":"X","customerId":"cust-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var pkg permit.Package
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkg))

	// no file field at all
	w = doJSON(g, http.MethodPost, "/api/permits/"+pkg.ID+"/documents", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	// executables are refused
	body, ctype := uploadBody(t, map[string]string{"category": "application"}, "payload.exe", "MZ")
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/permits/"+pkg.ID+"/documents", body)
	req.Header.Set("Content-Type", ctype)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "unsupported_file_type")

	// verification needs an explicit boolean
	w = doJSON(g, http.MethodPatch, "/api/documents/some-id/verification", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermitHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newPermitService()
	g := mountAs(svc, models.RoleCoordinator)

	w := doJSON(g, http.MethodPost, "/api/permits", `{"title":"Export me","customerId":"cust-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var pkg permit.Package
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkg))

	body, ctype := uploadBody(t, map[string]string{"category": "application"}, "application.pdf", "form 480")
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/permits/"+pkg.ID+"/documents", body)
	req.Header.Set("Content-Type", ctype)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(g, http.MethodGet, "/api/permits/"+pkg.ID+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "permit-"+pkg.ID+".zip")

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.Contains(t, names, "manifest.json")
}

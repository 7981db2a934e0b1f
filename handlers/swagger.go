package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the permit service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>permitflow API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document covering the auth endpoints and the permit package
// lifecycle API. Kept by hand; regenerate if the routes change.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "permitflow-api", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Log in with username/password or an authorization code",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" }, "401": { "description": "invalid credentials" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get user info", "responses": { "200": { "description": "user or claims" } } }
    },
    "/api/v1/permits": {
      "post": {
        "summary": "Create a permit package in draft",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"customer_id":{"type":"string"},"county_id":{"type":"string"},"contractor_id":{"type":"string"},"description":{"type":"string"}}}}}},
        "responses": { "200": { "description": "package created" }, "403": { "description": "role may not manage packages" } }
      },
      "get": {
        "summary": "List permit packages",
        "parameters": [ { "name": "status", "in": "query", "schema": {"type":"string","enum":["draft","building","ready_for_billing","submitted_to_billing"]} } ],
        "responses": { "200": { "description": "packages" }, "400": { "description": "unknown status filter" } }
      }
    },
    "/api/v1/permits/{id}": {
      "get": { "summary": "Get a package with its documents", "responses": { "200": { "description": "package detail" }, "404": { "description": "not found" } } }
    },
    "/api/v1/permits/{id}/start": {
      "post": { "summary": "Move a draft package to building", "responses": { "200": { "description": "transition result" }, "409": { "description": "package is past building" } } }
    },
    "/api/v1/permits/{id}/documents": {
      "post": { "summary": "Upload a document into a building package (multipart form: file, category)", "responses": { "200": { "description": "document stored" }, "409": { "description": "package not accepting documents" } } },
      "get": { "summary": "List a package's documents", "responses": { "200": { "description": "documents" } } }
    },
    "/api/v1/permits/{id}/ready-for-billing": {
      "patch": { "summary": "Mark a building package ready for billing", "responses": { "200": { "description": "transition result" }, "409": { "description": "checklist incomplete or documents unverified" } } }
    },
    "/api/v1/permits/{id}/submit-to-billing": {
      "patch": { "summary": "Submit a ready package to billing", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"offline":{"type":"boolean"},"note":{"type":"string"}}}}}}, "responses": { "200": { "description": "transition result with submission record" }, "409": { "description": "package not ready" } } }
    },
    "/api/v1/permits/{id}/export": {
      "get": { "summary": "Download the package as a zip archive", "responses": { "200": { "description": "application/zip body" }, "404": { "description": "not found" } } }
    },
    "/api/v1/documents/{id}/file": {
      "post": { "summary": "Replace a document's file (multipart form: file)", "responses": { "200": { "description": "file replaced, verification reset" }, "409": { "description": "package not in building" } } }
    },
    "/api/v1/documents/{id}/verification": {
      "patch": { "summary": "Set or clear a document's verification", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"verified":{"type":"boolean"},"note":{"type":"string"}}}}}}, "responses": { "200": { "description": "document updated" }, "403": { "description": "role may not verify" } } }
    },
    "/api/v1/documents/{id}": {
      "delete": { "summary": "Remove a document from a building package", "responses": { "200": { "description": "document removed" }, "409": { "description": "package not in building" } } }
    },
    "/api/v1/directory/customers": {
      "get": { "summary": "List customers", "responses": { "200": { "description": "customers" } } },
      "post": { "summary": "Create a customer", "responses": { "200": { "description": "customer created" } } }
    },
    "/api/v1/directory/counties": {
      "get": { "summary": "List counties", "responses": { "200": { "description": "counties" } } },
      "post": { "summary": "Create a county", "responses": { "200": { "description": "county created" } } }
    },
    "/api/v1/directory/contractors": {
      "get": { "summary": "List contractors", "responses": { "200": { "description": "contractors" } } },
      "post": { "summary": "Create a contractor", "responses": { "200": { "description": "contractor created" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the vault API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docvault API</title>
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

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docvault", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Member": { "type": "object", "properties": { "role": { "type": "string", "enum": ["owner", "editor", "viewer"] }, "name": { "type": "string" }, "avatar": { "type": "string" } } },
      "Document": {
        "type": "object",
        "properties": {
          "id": { "type": "string" },
          "title": { "type": "string" },
          "description": { "type": "string" },
          "category": { "type": "string", "enum": ["Work", "Personal", "Finance", "Legal"] },
          "tags": { "type": "array", "items": { "type": "string" } },
          "status": { "type": "string", "enum": ["active", "trashed"] },
          "createdAt": { "type": "string", "format": "date-time" },
          "updatedAt": { "type": "string", "format": "date-time" },
          "version": { "type": "integer" },
          "trashedAt": { "type": "string", "format": "date-time" },
          "reminderDate": { "type": "string", "format": "date-time" },
          "isFavorite": { "type": "boolean" },
          "content": { "type": "string" },
          "fileType": { "type": "string" },
          "storagePath": { "type": "string" },
          "ownerId": { "type": "string" },
          "members": { "type": "object", "additionalProperties": { "$ref": "#/components/schemas/Member" } }
        }
      }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Log in with an ID token, an authorization code or a password grant",
        "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string","enum":["id_token","auth_code","password"]},"id_token":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access and refresh tokens" }, "401": { "description": "authentication failed" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Rotate the refresh token and issue a new access token", "security": [], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"}}}}}}, "responses": { "200": { "description": "new tokens" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke sessions and close the live document subscription", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refreshToken":{"type":"string"},"all":{"type":"boolean"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": { "get": { "summary": "Current user", "responses": { "200": { "description": "user profile" } } } },
    "/api/documents": {
      "get": {
        "summary": "List the caller's documents",
        "parameters": [
          { "name": "view", "in": "query", "schema": { "type": "string", "enum": ["active", "trashed", "favorites", "all"] } },
          { "name": "category", "in": "query", "schema": { "type": "string" } },
          { "name": "q", "in": "query", "schema": { "type": "string" } }
        ],
        "responses": { "200": { "description": "documents, newest first" } }
      },
      "post": { "summary": "Create a document", "responses": { "201": { "description": "created" }, "400": { "description": "title and a valid category are required" } } }
    },
    "/api/documents/upload": { "post": { "summary": "Upload a file and create its document (multipart)", "responses": { "201": { "description": "created" } } } },
    "/api/documents/summary": { "get": { "summary": "Dashboard counters", "responses": { "200": { "description": "summary" } } } },
    "/api/documents/timeline": { "get": { "summary": "Active documents grouped by creation day", "responses": { "200": { "description": "timeline" } } } },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Edit metadata; reminderDate null clears the reminder", "responses": { "200": { "description": "updated" } } },
      "delete": { "summary": "Delete permanently, including the stored file", "responses": { "204": { "description": "deleted" }, "200": { "description": "record deleted, stored file left behind (warning)" } } }
    },
    "/api/documents/{id}/favorite": { "post": { "summary": "Toggle favorite", "responses": { "200": { "description": "new favorite state" } } } },
    "/api/documents/{id}/reminder": { "put": { "summary": "Set or clear the reminder", "responses": { "200": { "description": "updated" } } } },
    "/api/documents/{id}/trash": { "post": { "summary": "Move to trash", "responses": { "200": { "description": "trashed" } } } },
    "/api/documents/{id}/restore": { "post": { "summary": "Restore from trash", "responses": { "200": { "description": "restored" } } } },
    "/api/documents/{id}/members": {
      "put": { "summary": "Replace the member list (exactly one owner)", "responses": { "200": { "description": "updated" }, "403": { "description": "caller is not the owner" } } },
      "post": { "summary": "Invite a user by email as viewer", "responses": { "200": { "description": "invited" }, "404": { "description": "no such user" }, "409": { "description": "already a member" } } }
    },
    "/api/documents/{id}/members/{uid}": {
      "patch": { "summary": "Change a member's role", "responses": { "200": { "description": "updated" } } },
      "delete": { "summary": "Remove a member", "responses": { "200": { "description": "removed" } } }
    },
    "/api/users/lookup": { "get": { "summary": "Find a user by email", "responses": { "200": { "description": "user" }, "404": { "description": "no such user" } } } },
    "/api/notifications/permission": { "post": { "summary": "Grant or deny system notifications", "responses": { "200": { "description": "saved" } } } },
    "/api/ws": { "get": { "summary": "WebSocket: SNAPSHOT and TOAST frames", "responses": { "101": { "description": "switching protocols" } } } },
    "/api/share/{id}": { "get": { "summary": "Public preview of an active document", "security": [], "responses": { "200": { "description": "preview" }, "404": { "description": "not found" } } } },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`

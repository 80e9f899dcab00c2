package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the auth service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>storefront-auth - Swagger</title>
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
  "info": { "title": "storefront-auth", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": {"type":"string"}, "code": {"type":"string"}, "field": {"type":"string"} } },
      "Session": { "type": "object", "properties": { "accessToken": {"type":"string"}, "tokenType": {"type":"string"}, "expiresIn": {"type":"integer"}, "user": {"type":"object"} } }
    }
  },
  "paths": {
    "/auth/register": {
      "post": {
        "summary": "Create a password account",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["username","email","password"],"properties":{"username":{"type":"string"},"email":{"type":"string"},"password":{"type":"string"},"address":{"type":"object"}}}}}},
        "responses": { "201": { "description": "user created" }, "400": { "description": "invalid input" }, "409": { "description": "email or username taken" } }
      }
    },
    "/auth/login": {
      "post": {
        "summary": "Log in with email and password; sets the refresh cookie",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["email","password"],"properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "session started", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Session" } } } }, "401": { "description": "invalid email or password" }, "403": { "description": "account uses social login" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Rotate the refresh cookie and return a new access token", "responses": { "200": { "description": "new access token" }, "401": { "description": "missing, invalid or revoked refresh token" }, "403": { "description": "user no longer exists" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke every session of the cookie's owner", "responses": { "204": { "description": "logged out" } } }
    },
    "/auth/google": {
      "get": { "summary": "Start Google sign-in", "responses": { "302": { "description": "redirect to consent page" } } }
    },
    "/auth/google/callback": {
      "get": { "summary": "Finish Google sign-in; sets the refresh cookie", "responses": { "200": { "description": "session started" }, "403": { "description": "sign-in rejected" }, "409": { "description": "email linked to another account" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get the current user", "security": [{"bearer": []}], "responses": { "200": { "description": "user" }, "401": { "description": "unauthenticated" } } }
    },
    "/api/v1/admin/users/{id}/sessions": {
      "delete": { "summary": "Revoke every session of a user", "security": [{"bearer": []}], "parameters": [{"name":"id","in":"path","required":true,"schema":{"type":"integer"}}], "responses": { "200": { "description": "sessions revoked" }, "403": { "description": "not an admin or unknown user" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`

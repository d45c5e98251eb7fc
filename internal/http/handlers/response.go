// Package handlers provides HTTP handler implementations for the relay API.
//
// This file defines the response helpers shared by every endpoint. Errors
// use a single-field envelope, {"error": "<message>"}, which is the contract
// upstream platforms and room clients already parse.
//
// Conventions:
//   - fail() centralizes error logging and formatting; 5xx responses are
//     logged with the request-scoped logger and a stable code.
//   - ok() keeps success responses uniform.
//
// Example error response:
//
//	HTTP/1.1 400 Bad Request
//	{ "error": "Expected WebSocket" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-room-relay/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Human-readable message
	Error string `json:"error" example:"Invalid payload"`
}

// SuccessResponse acknowledges a webhook or blob write.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// fail aborts the request with an ErrorResponse.
//
// Server errors (>=500) are logged with the request-scoped logger, the
// status and code; client errors are left to the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// Fail is the exported variant of fail() for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

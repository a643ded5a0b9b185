// Package httperrors provides generic error responses for HTTP endpoints.
// It ensures that internal implementation details are not leaked to clients.
package httperrors

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error response for clients
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Generic error messages that don't expose internal details
const (
	MsgUnauthorized         = "Authentication required"
	MsgInvalidToken         = "Invalid or expired authentication token"
	MsgInvalidCredentials   = "Invalid email or password"
	MsgConfirmationRequired = "Email confirmation required"
	MsgInvalidAuthHeader    = "Invalid authorization header"
	MsgForbidden            = "Insufficient permissions"
	MsgInvalidRequest       = "Invalid request parameters"
	MsgInternalError        = "An internal error occurred"
	MsgServiceUnavailable   = "Service temporarily unavailable"
	MsgResourceNotFound     = "Resource not found"
	MsgBadRequest           = "Bad request"
	MsgConflict             = "Resource already exists"
)

// Error codes for client-side handling
const (
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeConfirmationRequired = "EMAIL_CONFIRMATION_REQUIRED"
	CodeForbidden            = "FORBIDDEN"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeNotFound             = "NOT_FOUND"
	CodeBadRequest           = "BAD_REQUEST"
	CodeConflict             = "CONFLICT"
)

// RespondUnauthorized sends a 401 response with a generic message
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = MsgUnauthorized
	}
	c.JSON(401, ErrorResponse{
		Error: message,
		Code:  CodeUnauthorized,
	})
}

// RespondInvalidToken sends a 401 response for invalid tokens
func RespondInvalidToken(c *gin.Context) {
	c.JSON(401, ErrorResponse{
		Error: MsgInvalidToken,
		Code:  CodeInvalidToken,
	})
}

// RespondInvalidCredentials sends a 401 response for failed logins.
// The message never reveals whether the email exists.
func RespondInvalidCredentials(c *gin.Context) {
	c.JSON(401, ErrorResponse{
		Error: MsgInvalidCredentials,
		Code:  CodeUnauthorized,
	})
}

// RespondConfirmationRequired sends a 403 response for unconfirmed accounts.
// Deliberately distinct from invalid credentials: the caller authenticated
// correctly but may not log in yet.
func RespondConfirmationRequired(c *gin.Context) {
	c.JSON(403, ErrorResponse{
		Error: MsgConfirmationRequired,
		Code:  CodeConfirmationRequired,
	})
}

// RespondForbidden sends a 403 response with a generic message
func RespondForbidden(c *gin.Context) {
	c.JSON(403, ErrorResponse{
		Error: MsgForbidden,
		Code:  CodeForbidden,
	})
}

// RespondBadRequest sends a 400 response with a generic message
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = MsgBadRequest
	}
	c.JSON(400, ErrorResponse{
		Error: message,
		Code:  CodeBadRequest,
	})
}

// RespondConflict sends a 409 response
func RespondConflict(c *gin.Context, message string) {
	if message == "" {
		message = MsgConflict
	}
	c.JSON(409, ErrorResponse{
		Error: message,
		Code:  CodeConflict,
	})
}

// RespondInternalError sends a 500 response with a generic message
func RespondInternalError(c *gin.Context) {
	c.JSON(500, ErrorResponse{
		Error: MsgInternalError,
		Code:  CodeInternalError,
	})
}

// RespondServiceUnavailable sends a 503 response
func RespondServiceUnavailable(c *gin.Context) {
	c.JSON(503, ErrorResponse{
		Error: MsgServiceUnavailable,
		Code:  CodeServiceUnavailable,
	})
}

// RespondNotFound sends a 404 response
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = MsgResourceNotFound
	}
	c.JSON(404, ErrorResponse{
		Error: message,
		Code:  CodeNotFound,
	})
}

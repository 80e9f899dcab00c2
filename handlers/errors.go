package handlers

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/storefront/storefront/backend/auth-service/internal/apperr"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

// statusFor maps every error kind to an HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindInvalidCredentials, apperr.KindTokenMissing, apperr.KindTokenInvalid, apperr.KindTokenRevoked:
		return http.StatusUnauthorized
	case apperr.KindOAuthOnlyAccount, apperr.KindUserNotFound, apperr.KindOAuthRejected, apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindLinkingConflict, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// publicError is what the client sees. Token failures share one message and code
// so a caller cannot tell a forged token from a revoked one.
func publicError(err error) (code, message string) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return apperr.KindInternal.String(), "internal server error"
	}
	switch ae.Kind {
	case apperr.KindTokenInvalid, apperr.KindTokenRevoked:
		return "invalid_session", "invalid or expired session"
	case apperr.KindInternal:
		return ae.Kind.String(), "internal server error"
	case apperr.KindStorageUnavailable:
		return ae.Kind.String(), "service temporarily unavailable"
	}
	return ae.Kind.String(), ae.Message
}

// respondError writes err as JSON. Server-side failures are logged and sent to Sentry.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	code, msg := publicError(err)

	if status >= http.StatusInternalServerError {
		sentry.CaptureException(err)
		logger.ErrorFields("request_failed", logger.Fields{"path": c.Request.URL.Path, "kind": kind.String(), "error": err})
	}

	body := gin.H{"error": msg, "code": code}
	var ae *apperr.Error
	if errors.As(err, &ae) && (kind == apperr.KindInvalidInput || kind == apperr.KindConflict) {
		if f, ok := ae.Context["field"]; ok {
			body["field"] = f
		}
	}
	c.AbortWithStatusJSON(status, body)
}

package server

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	scopeContextKey = "folio_request_scope"
	requestIDHeader = "X-Request-ID"

	maxRequestIDLength = 64
)

// requestScope is the per-request state handlers read. Only the middleware in this
// file writes it.
type requestScope struct {
	RequestID string
	State     auth.State
	Principal *access.Principal
}

func scopeFrom(c *gin.Context) *requestScope {
	if value, ok := c.Get(scopeContextKey); ok {
		if scope, ok := value.(*requestScope); ok {
			return scope
		}
	}
	scope := &requestScope{State: auth.Unauthenticated(nil)}
	c.Set(scopeContextKey, scope)
	return scope
}

// principalFrom returns the signed-in principal or nil for anonymous requests.
func principalFrom(c *gin.Context) *access.Principal {
	return scopeFrom(c).Principal
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if !validRequestID(requestID) {
			requestID = ""
			if generated, err := uuid.NewV7(); err == nil {
				requestID = generated.String()
			}
		}
		scopeFrom(c).RequestID = requestID
		c.Header(requestIDHeader, requestID)

		c.Next()

		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		)
	}
}

// validRequestID accepts short client ids made of letters, digits, dots, dashes and
// underscores. Anything else is replaced before it reaches logs or headers.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// resolveViewer decodes the token cookie and materializes the principal. A token whose
// account no longer exists, or a failed lookup, leaves the request anonymous.
func (h *httpHandler) resolveViewer(c *gin.Context) {
	scope := scopeFrom(c)
	scope.State = h.resolver.Resolve(c.Request)
	if !scope.State.Authorized() {
		c.Next()
		return
	}
	principal, found, err := h.accounts.LoadPrincipal(c.Request.Context(), scope.State.Subject())
	switch {
	case err != nil:
		h.logger.Warn("principal lookup failed", zap.Int64("user_id", scope.State.Subject()), zap.Error(err))
	case !found:
		h.logger.Info("token subject has no account", zap.Int64("user_id", scope.State.Subject()))
	default:
		scope.Principal = &principal
	}
	c.Next()
}

// accessGuard lets signed-in requests through and answers everyone else with the
// denial contract for the request's method class.
func (h *httpHandler) accessGuard(c *gin.Context) {
	scope := scopeFrom(c)
	if scope.State.Authorized() && scope.Principal != nil {
		c.Next()
		return
	}
	h.logDenial(scope)
	h.deny(c, msgNoPermission)
	c.Abort()
}

func (h *httpHandler) logDenial(scope *requestScope) {
	reason := scope.State.Reason()
	fields := []zap.Field{zap.String("request_id", scope.RequestID)}
	switch {
	case reason == nil:
		h.logger.Info("access denied for unknown account", fields...)
	case errors.Is(reason, auth.ErrMissingToken):
		h.logger.Debug("access denied without token", fields...)
	case errors.Is(reason, auth.ErrExpiredToken):
		h.logger.Info("access denied for expired token", append(fields, zap.Error(reason))...)
	default:
		h.logger.Warn("access denied for invalid token", append(fields, zap.Error(reason))...)
	}
}

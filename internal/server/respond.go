package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeOK     = 200
	codeDenied = 400
	codeFailed = 500

	msgNoPermission     = "no permission"
	msgNotFoundOrNotYou = "resource not found or not yours"
	msgOutOfRange       = "resource does not exist"
	msgInternal         = "internal error"
	msgInvalidCreds     = "invalid credentials"

	templateError = "error.html"
)

// isFetch reports whether the request expects a rendered page. Every other method
// is a submit and gets a JSON envelope.
func isFetch(c *gin.Context) bool {
	method := c.Request.Method
	return method == http.MethodGet || method == http.MethodHead
}

// deny answers with the denial contract: a rendered error page for fetches, a JSON
// envelope for submits.
func (h *httpHandler) deny(c *gin.Context, message string) {
	h.respondFailure(c, http.StatusBadRequest, codeDenied, message)
}

func (h *httpHandler) respondFailure(c *gin.Context, status, code int, message string) {
	if isFetch(c) {
		h.renderPage(c, status, templateError, map[string]any{
			"code":    code,
			"msg":     message,
			"baseUrl": h.baseURL,
		})
		return
	}
	c.JSON(status, gin.H{
		"code":    code,
		"msg":     message,
		"baseUrl": h.baseURL,
		"success": 0,
		"message": message,
	})
}

// respondError maps a service error to a client message. Upstream error text is only
// logged.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var validation *access.ValidationError
	switch {
	case errors.As(err, &validation):
		h.respondFailure(c, http.StatusBadRequest, codeDenied, validation.Message)
	case errors.Is(err, access.ErrAuthOrNotFound):
		h.respondFailure(c, http.StatusBadRequest, codeDenied, msgNotFoundOrNotYou)
	case errors.Is(err, access.ErrPageOutOfRange):
		h.respondFailure(c, http.StatusBadRequest, codeDenied, msgOutOfRange)
	default:
		fields := []zap.Field{
			zap.String("request_id", scopeFrom(c).RequestID),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		}
		var serviceErr *access.ServiceError
		if errors.As(err, &serviceErr) {
			fields = append(fields, zap.String("code", serviceErr.Code()))
		}
		h.logger.Error("request failed", fields...)
		h.respondFailure(c, http.StatusInternalServerError, codeFailed, msgInternal)
	}
}

func (h *httpHandler) respondOK(c *gin.Context, message string, extra gin.H) {
	body := gin.H{
		"code":    codeOK,
		"msg":     message,
		"baseUrl": h.baseURL,
		"success": 1,
	}
	for key, value := range extra {
		body[key] = value
	}
	c.JSON(http.StatusOK, body)
}

// renderPage renders into a buffer first so a template failure never leaves a
// half-written page.
func (h *httpHandler) renderPage(c *gin.Context, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["baseUrl"]; !ok {
		data["baseUrl"] = h.baseURL
	}
	if _, ok := data["login"]; !ok {
		data["login"] = principalFrom(c) != nil
	}
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, name, data); err != nil {
		h.logger.Error("template render failed", zap.String("template", name), zap.Error(err))
		c.String(http.StatusInternalServerError, msgInternal)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
)

type errorDetail struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// writeError renders err and aborts the handler chain. Internal failures are
// logged and returned without detail.
func writeError(c *gin.Context, err error) {
	var authErr *authError
	if errors.As(err, &authErr) {
		code := "UNAUTHENTICATED"
		if authErr.status == http.StatusForbidden {
			code = "PERMISSION_DENIED"
		}
		c.AbortWithStatusJSON(authErr.status, errorBody{Error: errorDetail{Code: code, Message: authErr.message}})
		return
	}

	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	detail := errorDetail{Code: string(code), Message: err.Error()}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		detail.Metadata = appErr.Metadata
	}
	if status >= http.StatusInternalServerError && code != apperrors.CodeBackendUnavailable {
		log.Printf("httpapi: %s %s: %v", c.Request.Method, c.FullPath(), err)
		detail.Message = "internal error"
		detail.Metadata = nil
	}
	c.AbortWithStatusJSON(status, errorBody{Error: detail})
}

func badRequest(c *gin.Context, err error) {
	writeError(c, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid request body", err))
}

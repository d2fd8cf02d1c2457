package middleware

import (
	"net/http"

	"truek-settlement/pkg/apperror"
	"truek-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// ErrBodyTooLarge is returned for requests over the configured body limit.
func ErrBodyTooLarge() *apperror.AppError {
	return apperror.New(apperror.CodeValidation, "Request body too large", http.StatusRequestEntityTooLarge)
}

// MaxBodySize limits the request body. A declared Content-Length over the
// limit is rejected up front; otherwise the reader fails once maxBytes is
// exceeded and binding surfaces an *http.MaxBytesError.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, ErrBodyTooLarge())
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

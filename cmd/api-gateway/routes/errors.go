package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apitypes "github.com/lgulliver/pdfshrink/cmd/api-gateway/types"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/rs/zerolog/log"
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRequest), errors.Is(err, types.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrInputNotFound), errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a failure body. summary is the short, user-facing
// error; the wrapped error becomes the message.
func respondError(c *gin.Context, summary string, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound {
		summary = "File not found"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(summary)
	}
	c.JSON(status, apitypes.ErrorResponse{
		Success: false,
		Error:   summary,
		Message: err.Error(),
	})
}

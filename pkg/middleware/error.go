package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/gin-gonic/gin"

	"reviewdash/pkg/tracing"
)

type ErrorResponse struct {
	Error     string         `json:"error"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// RespondError writes err as JSON and aborts the chain. HTTP errors keep
// their status and message; anything else becomes a 500.
func RespondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	message := "internal server error"
	var meta map[string]any

	if httperror.IsHTTPError(err) {
		httperr := httperror.ToHTTPError(err)
		code = httperror.GetStatusCode(err)
		message = httperr.Error()
		meta = httperr.Meta
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:     message,
		RequestID: GetRequestID(c),
		TraceID:   tracing.GetTraceID(c.Request.Context()),
		Meta:      meta,
	})
}

package utils

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/gin-gonic/gin"
)

// BindJSON decodes the request body into T and validates it. Failures are
// 400 HTTP errors.
func BindJSON[T any](c *gin.Context) (T, error) {
	var v T

	if err := c.ShouldBindJSON(&v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	if v, err := Validate(v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	return v, nil
}

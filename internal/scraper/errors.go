package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"reviewdash/pkg/database"
)

var ErrUnknownSource = errors.New("unknown provider")

const opAppID = "app id"

// ProviderError is returned by sources for any failed provider call.
// Transient errors are retried by the driver; permanent ones abort the run.
type ProviderError struct {
	Source    string
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Source, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func transientErr(source, op string, err error) error {
	return &ProviderError{Source: source, Op: op, Transient: true, Err: err}
}

func permanentErr(source, op string, err error) error {
	return &ProviderError{Source: source, Op: op, Err: err}
}

// statusErr classifies a non-2xx response: 408, 429 and 5xx are transient.
func statusErr(source, op string, status int, body []byte) error {
	if len(body) > 256 {
		body = body[:256]
	}
	transient := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
	return &ProviderError{
		Source:    source,
		Op:        op,
		Status:    status,
		Transient: transient,
		Err:       errors.New(string(body)),
	}
}

// IsTransient reports whether err may succeed on retry. Context errors are
// never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// IsPermanent reports whether err is a non-retryable provider failure.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && !pe.Transient
}

// IsInvalidAppID reports whether err rejects a malformed app id.
func IsInvalidAppID(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Op == opAppID
}

// ToHTTPError maps pipeline errors onto API status codes.
func ToHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case httperror.IsHTTPError(err):
		return err
	case errors.Is(err, ErrUnknownSource), IsInvalidAppID(err):
		return httperror.WrapError(http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		return httperror.WrapError(http.StatusGatewayTimeout, err)
	case database.IsStoreError(err):
		return httperror.NewHTTPError(http.StatusInternalServerError, "store error")
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Status == http.StatusNotFound {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "%s: app not found", pe.Source)
		}
		return httperror.WrapError(http.StatusBadGateway, err)
	}
	return httperror.WrapError(http.StatusInternalServerError, err)
}

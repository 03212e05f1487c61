package ledger

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

var (
	// ErrNotFound is returned for missing accounts, resources and table items.
	ErrNotFound = errors.New("ledger: not found")

	// ErrConfirmationTimeout means the transaction was submitted but no
	// commit was observed in time. It may still land.
	ErrConfirmationTimeout = errors.New("ledger: transaction confirmation timed out")
)

// APIError is a non-2xx response from the node.
type APIError struct {
	StatusCode  int
	Code        string
	VMErrorCode uint64
	Message     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger api %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger api %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Transient reports whether retrying the same request may succeed.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		e.Code = res.Get("error_code").String()
		e.VMErrorCode = res.Get("vm_error_code").Uint()
		e.Message = res.Get("message").String()
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// AbortedError is a committed transaction whose execution failed.
type AbortedError struct {
	Hash     string
	VMStatus string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.VMStatus)
}

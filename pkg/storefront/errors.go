package storefront

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError is the typed failure returned by every storefront call. The
// Retryable flag is the classification the retry policy and the batch
// processor act on: transport failures that exhausted their retry budget
// are retryable, downstream business-rule rejections are not.
type APIError struct {
	Operation string
	Retryable bool
	Messages  []string
	Err       error
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("storefront %s rejected: %s", e.Operation, strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("storefront %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("storefront %s failed", e.Operation)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsBusinessRejection reports whether err is a downstream business-rule
// rejection, i.e. the storefront validated the operation and refused it.
// Retrying such a call would not change the outcome.
func IsBusinessRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Retryable
}

// rateLimitError signals a throttled response inside the retry loop. It
// never escapes execute.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

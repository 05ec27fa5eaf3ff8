package domain

import (
	"errors"
	"fmt"
)

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// ErrUsageNotFound indicates no usage record exists for a (user, month).
var ErrUsageNotFound = errors.New("usage record not found")

// QuotaDeniedError is the user-visible "not allowed" outcome of a quota
// check. It is a policy decision, not a system fault.
type QuotaDeniedError struct {
	Reason string
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("quota denied: %s", e.Reason)
}

// IsQuotaDenied reports whether err wraps a quota denial.
func IsQuotaDenied(err error) bool {
	var denied *QuotaDeniedError
	return errors.As(err, &denied)
}

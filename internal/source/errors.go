package source

import (
	"context"
	"errors"
	"net"
)

// IsTransient reports whether a submission failure is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var submissionErr *SubmissionError
	if errors.As(err, &submissionErr) {
		return submissionErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

package ai

import (
	"context"
	"errors"
)

// ErrEmbeddingFailed indicates that embedding generation failed.
var ErrEmbeddingFailed = errors.New("embedding generation failed")

// TransientError marks a failure that is worth retrying, such as a
// connection refusal or a rate-limit response from the provider.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Context cancellation is never
// transient; retrying a canceled call cannot succeed.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

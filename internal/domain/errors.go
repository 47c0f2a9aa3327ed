package domain

import (
	"errors"
	"fmt"

	apperrors "github.com/utafrali/shopindex/pkg/errors"
)

var (
	// ErrTransientIndexWrite marks a retriable failure writing to the index store.
	ErrTransientIndexWrite = errors.New("transient index write failure")
	// ErrRecordRead marks a failure reading a source record while building a document.
	ErrRecordRead = errors.New("record read failure")
	// ErrReindexConflict is returned when a reindex is already active for the target.
	ErrReindexConflict = fmt.Errorf("reindex already in progress: %w", apperrors.ErrConflict)
	// ErrReindexFatal marks a reindex pass that could not complete.
	ErrReindexFatal = errors.New("reindex failed")
	// ErrIndexUnavailable is returned by reads when the index store cannot be reached.
	ErrIndexUnavailable = fmt.Errorf("index store unavailable: %w", apperrors.ErrServiceUnavail)
)

// Retriable reports whether err is worth another attempt.
func Retriable(err error) bool {
	return errors.Is(err, ErrTransientIndexWrite) ||
		errors.Is(err, ErrRecordRead) ||
		errors.Is(err, ErrIndexUnavailable)
}

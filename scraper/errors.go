package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-resolve-collections/browser"
)

// SkipError abandons an address because a structural element never showed.
// No record is emitted for it.
type SkipError struct {
	Stage string
	Err   error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped at %s: %v", e.Stage, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// NavigationError indicates a page could not be loaded after all retries.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered while resolving one address.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

var errMissingHref = errors.New("asset anchor has no href")

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var skip *SkipError
	if errors.As(err, &skip) {
		return "structural_missing"
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return "panic"
	}
	var session *browser.SessionError
	if errors.As(err, &session) {
		return "session"
	}
	var nav *NavigationError
	if errors.As(err, &nav) {
		return "navigation"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, browser.ErrWaitTimeout) {
		return "timeout"
	}
	return "other"
}

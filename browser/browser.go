// Package browser provides isolated browser sessions and the narrow set of
// page interactions the resolver needs.
//
// All chromedp usage is kept in this package so the resolution logic can be
// exercised against fakes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned by WaitVisible when no matching element became
// visible in time.
var ErrWaitTimeout = errors.New("browser: element not visible before timeout")

// By selects how a Locator's value is interpreted.
type By int

const (
	ByCSS By = iota
	ByID
	ByName
	ByClassName
	ByTagName
)

func (b By) String() string {
	switch b {
	case ByCSS:
		return "css"
	case ByID:
		return "id"
	case ByName:
		return "name"
	case ByClassName:
		return "class"
	case ByTagName:
		return "tag"
	default:
		return fmt.Sprintf("by(%d)", int(b))
	}
}

// Locator identifies elements on a page.
type Locator struct {
	By    By
	Value string
}

// CSS is shorthand for a CSS selector locator.
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

func (l Locator) String() string {
	return l.By.String() + "=" + l.Value
}

// SessionOptions controls how a session is launched.
type SessionOptions struct {
	UseProxy bool
	Headless bool
}

// Session is one live browser bound to a user agent and optionally a proxy.
// A Session is not safe for concurrent use.
type Session interface {
	// Navigate loads url in the session's tab.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until an element matching loc is visible. It
	// returns ErrWaitTimeout after timeout, or ctx's error if ctx ends first.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	// Text returns the rendered text of the first element matching loc.
	// found is false when nothing matches.
	Text(ctx context.Context, loc Locator) (text string, found bool, err error)
	// Attribute returns the named property of the first element matching
	// loc. For links, "href" is the absolute URL.
	Attribute(ctx context.Context, loc Locator, name string) (value string, found bool, err error)
	// UserAgent and Proxy report what the session was launched with.
	UserAgent() string
	Proxy() string
	// Close releases the tab and the browser process.
	Close() error
}

// Factory launches sessions.
type Factory interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// SessionError indicates the automation engine could not start.
type SessionError struct {
	Proxy string
	Err   error
}

func (e *SessionError) Error() string {
	if e.Proxy != "" {
		return fmt.Sprintf("start session via proxy %s: %v", e.Proxy, e.Err)
	}
	return fmt.Sprintf("start session: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

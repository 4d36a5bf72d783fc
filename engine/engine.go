// Package engine opens product pages and exposes them through one capability
// interface, whether the page was rendered by a browser or fetched over HTTP.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnsupported is returned by Page methods the backing engine cannot perform.
var ErrUnsupported = errors.New("engine: operation not supported by this page")

// Navigator opens pages. Implementations perform no retries.
type Navigator interface {
	// Name returns the engine identifier ("http" or "browser").
	Name() string

	// Open loads req.URL and returns a handle to it. A load that runs out of
	// req.Timeout still yields a page whose Partial method reports true;
	// cancellation of ctx is returned as an error.
	Open(ctx context.Context, req *OpenRequest) (Page, error)
}

// OpenRequest contains everything a navigator needs to load a page.
type OpenRequest struct {
	URL string

	// ReadySelector, if set, is awaited after navigation.
	ReadySelector string

	// Timeout bounds navigation plus the ready wait.
	Timeout time.Duration

	Stealth bool
	Headers map[string]string
}

// Page is a loaded product page.
type Page interface {
	// URL is the final URL after redirects.
	URL() string

	// StatusCode is the HTTP status of the main document, 0 when unknown.
	StatusCode() int

	// Partial reports that the load timed out before completing.
	Partial() bool

	// Live reports whether the DOM can still change after Open returns.
	Live() bool

	Title(ctx context.Context) string

	// Query returns a snapshot of every element matching selector in
	// document order. An error means the lookup itself failed (for example
	// a node went stale) and may succeed if repeated.
	Query(ctx context.Context, selector string) ([]Node, error)

	// WaitFor blocks until selector matches or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) bool

	Click(ctx context.Context, selector string) error
	EnterText(ctx context.Context, selector, text string) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)

	// Close releases the page. It is safe to call more than once.
	Close() error
}

// Node is a snapshot of one matched element.
type Node struct {
	Text    string
	Attrs   map[string]string
	Visible bool
}

// trackedAttrs are the attributes copied into Node snapshots.
var trackedAttrs = []string{"id", "class", "type", "name", "disabled", "aria-disabled", "hidden", "style"}

// Attr returns the attribute value and whether it is present.
func (n Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Disabled reports a disabled attribute, aria-disabled="true", or a class
// token ending in "disabled" (e.g. "m-disabled", "is-disabled").
func (n Node) Disabled() bool {
	if _, ok := n.Attrs["disabled"]; ok {
		return true
	}
	if strings.EqualFold(n.Attrs["aria-disabled"], "true") {
		return true
	}
	for _, c := range strings.Fields(n.Attrs["class"]) {
		if strings.HasSuffix(strings.ToLower(c), "disabled") {
			return true
		}
	}
	return false
}

// hiddenByMarkup reports whether static markup hides the element.
func hiddenByMarkup(attrs map[string]string) bool {
	if _, ok := attrs["hidden"]; ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attrs["style"]), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

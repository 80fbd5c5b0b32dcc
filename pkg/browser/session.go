package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Strategy is the way a Locator's value is interpreted
type Strategy string

const (
	XPath Strategy = "xpath"
	CSS   Strategy = "css"
	Class Strategy = "class"
)

// Locator identifies elements on the current page
type Locator struct {
	Strategy Strategy
	Value    string
}

// ParseStrategy maps a configuration value to a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case XPath:
		return XPath, nil
	case CSS:
		return CSS, nil
	case Class:
		return Class, nil
	}
	return "", fmt.Errorf("unknown locator strategy %q", s)
}

// Query returns the selector string sent to the browser. Class locators
// become a CSS class selector.
func (l Locator) Query() string {
	if l.Strategy == Class {
		return "." + strings.Join(strings.Fields(l.Value), ".")
	}
	return l.Value
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Element is a handle to a node on the page
type Element interface {
	// Attribute returns the named attribute and whether it is present
	Attribute(name string) (string, bool)
}

// Session is a live, stateful browser page under remote control.
// Waits return an error wrapping errors.ErrElementNotFound when nothing
// matched in time. Close is idempotent.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitForElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	WaitForClickable(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// FindAll returns every match, or an empty slice if nothing appeared within timeout
	FindAll(ctx context.Context, loc Locator, timeout time.Duration) ([]Element, error)
	// Count returns the number of current matches without waiting
	Count(ctx context.Context, loc Locator) (int, error)
	Click(ctx context.Context, el Element) error
	Clear(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	// RunScript calls the JavaScript function fn with `this` bound to el
	RunScript(ctx context.Context, fn string, el Element) error
	Close() error
}

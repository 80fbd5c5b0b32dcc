// Package browsertest provides a scripted in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"igfetch/pkg/browser"
	"igfetch/pkg/errors"
)

// Element is a fake DOM node
type Element struct {
	ID    string
	Attrs map[string]string
}

// NewElement builds an element with attributes given as key/value pairs
func NewElement(id string, kv ...string) *Element {
	e := &Element{ID: id, Attrs: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Attrs[kv[i]] = kv[i+1]
	}
	return e
}

func (e *Element) Attribute(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Anchor is a shorthand for an element carrying an href
func Anchor(href string) *Element {
	return NewElement("a:"+href, "href", href)
}

// Session is a browser.Session whose page is a map from locator value to
// the elements currently matching it. Waits never sleep: a locator either
// matches or the wait fails immediately.
type Session struct {
	mu       sync.Mutex
	page     map[string][]*Element
	onClick  map[*Element]func(s *Session)
	waits    map[string][]time.Duration
	calls    []string
	typed    []string
	closed   int
	navErr   error
	beforeOp func(op string, loc browser.Locator)
}

// New creates an empty fake page
func New() *Session {
	return &Session{
		page:    map[string][]*Element{},
		onClick: map[*Element]func(*Session){},
		waits:   map[string][]time.Duration{},
	}
}

// Set replaces the elements matching the locator value
func (s *Session) Set(value string, els ...*Element) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page[value] = els
	return s
}

// Append adds elements to those matching the locator value
func (s *Session) Append(value string, els ...*Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page[value] = append(s.page[value], els...)
}

// Remove drops every element matching the locator value
func (s *Session) Remove(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.page, value)
}

// OnClick registers a hook run when el is clicked
func (s *Session) OnClick(el *Element, fn func(s *Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClick[el] = fn
}

// FailNavigation makes Navigate return err
func (s *Session) FailNavigation(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navErr = err
}

// BeforeOp registers a hook invoked at the start of every wait or query
func (s *Session) BeforeOp(fn func(op string, loc browser.Locator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeOp = fn
}

// Calls returns the operations performed so far
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount counts recorded operations starting with prefix
func (s *Session) CallCount(prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Waits returns the timeouts requested for a locator value
func (s *Session) Waits(value string) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits[value]...)
}

// Typed returns the text sent with Type
func (s *Session) Typed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.typed...)
}

// Closed returns how many times Close was called
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) record(format string, args ...interface{}) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *Session) enter(ctx context.Context, op string, loc browser.Locator, timeout time.Duration) error {
	s.mu.Lock()
	hook := s.beforeOp
	s.mu.Unlock()
	if hook != nil {
		hook(op, loc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("%s %s", op, loc.Value)
	if timeout > 0 {
		s.waits[loc.Value] = append(s.waits[loc.Value], timeout)
	}
	if err := ctx.Err(); err != nil {
		return errors.New(errors.ErrorTypeCancelled, loc.String(), "", err)
	}
	return nil
}

func notFound(loc browser.Locator) error {
	return errors.New(errors.ErrorTypeElementNotFound, loc.String(), "", errors.ErrElementNotFound)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("navigate %s", url)
	if err := ctx.Err(); err != nil {
		return errors.New(errors.ErrorTypeCancelled, "navigate", "", err)
	}
	if s.navErr != nil {
		return errors.New(errors.ErrorTypeNavigation, "navigate", url, s.navErr)
	}
	return nil
}

func (s *Session) WaitForElement(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	if err := s.enter(ctx, "wait", loc, timeout); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if els := s.page[loc.Value]; len(els) > 0 {
		return els[0], nil
	}
	return nil, notFound(loc)
}

func (s *Session) WaitForClickable(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	if err := s.enter(ctx, "clickable", loc, timeout); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range s.page[loc.Value] {
		if _, disabled := el.Attrs["disabled"]; !disabled {
			return el, nil
		}
	}
	return nil, notFound(loc)
}

func (s *Session) FindAll(ctx context.Context, loc browser.Locator, timeout time.Duration) ([]browser.Element, error) {
	if err := s.enter(ctx, "findall", loc, timeout); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]browser.Element, 0, len(s.page[loc.Value]))
	for _, el := range s.page[loc.Value] {
		out = append(out, el)
	}
	return out, nil
}

func (s *Session) Count(ctx context.Context, loc browser.Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.page[loc.Value]), nil
}

func (s *Session) Click(ctx context.Context, el browser.Element) error {
	fe := el.(*Element)
	s.mu.Lock()
	s.record("click %s", fe.ID)
	hook := s.onClick[fe]
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.New(errors.ErrorTypeCancelled, "click", "", err)
	}
	if hook != nil {
		hook(s)
	}
	return nil
}

func (s *Session) Clear(ctx context.Context, el browser.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("clear %s", el.(*Element).ID)
	return ctx.Err()
}

func (s *Session) Type(ctx context.Context, el browser.Element, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("type %s", text)
	s.typed = append(s.typed, text)
	return ctx.Err()
}

// RunScript records the call; a script containing "remove" deletes the element from the page
func (s *Session) RunScript(ctx context.Context, fn string, el browser.Element) error {
	fe := el.(*Element)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("script %s", fe.ID)
	if strings.Contains(fn, "remove") {
		for k, els := range s.page {
			kept := els[:0:0]
			for _, e := range els {
				if e != fe {
					kept = append(kept, e)
				}
			}
			s.page[k] = kept
		}
	}
	return ctx.Err()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

var _ browser.Session = (*Session)(nil)

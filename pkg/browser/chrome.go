package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"igfetch/pkg/errors"
	"igfetch/pkg/logger"
	"igfetch/pkg/wait"
)

// chromeElement wraps a DOM node tracked by chromedp
type chromeElement struct {
	node *cdp.Node
}

func (e *chromeElement) Attribute(name string) (string, bool) {
	return e.node.Attribute(name)
}

// ChromeSession drives a Chrome tab through the DevTools protocol
type ChromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	navTimeout  time.Duration
	reviewDelay time.Duration
	log         logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// newChromeSession opens a tab on the allocator and makes sure the browser
// actually started. cancelAlloc is released when the session closes.
func newChromeSession(allocCtx context.Context, cancelAlloc context.CancelFunc, navTimeout, reviewDelay time.Duration, log logger.Logger) (*ChromeSession, error) {
	ctx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	// An empty Run starts the browser
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, err
	}

	return &ChromeSession{
		ctx:         ctx,
		cancel:      cancel,
		navTimeout:  navTimeout,
		reviewDelay: reviewDelay,
		log:         log,
	}, nil
}

// bound derives a context from the browser context that is also cancelled
// when the caller's ctx is done or timeout elapses
func (s *ChromeSession) bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func queryOption(loc Locator) chromedp.QueryOption {
	if loc.Strategy == XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// Navigate loads url and waits for the document to be ready
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.bound(ctx, s.navTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return errors.New(errors.ErrorTypeCancelled, "navigate", "", ctx.Err())
		}
		return errors.New(errors.ErrorTypeNavigation, "navigate", url, err)
	}
	return nil
}

func (s *ChromeSession) waitNodes(ctx context.Context, loc Locator, timeout time.Duration, opts ...chromedp.QueryOption) ([]*cdp.Node, error) {
	runCtx, cancel := s.bound(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{queryOption(loc)}, opts...)
	if err := chromedp.Run(runCtx, chromedp.Nodes(loc.Query(), &nodes, opts...)); err != nil {
		return nil, s.waitError(ctx, loc, err)
	}
	if len(nodes) == 0 {
		return nil, errors.New(errors.ErrorTypeElementNotFound, loc.String(), "", errors.ErrElementNotFound)
	}
	return nodes, nil
}

func (s *ChromeSession) waitError(ctx context.Context, loc Locator, err error) error {
	if ctx.Err() != nil {
		return errors.New(errors.ErrorTypeCancelled, loc.String(), "", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.New(errors.ErrorTypeElementNotFound, loc.String(), "", errors.ErrElementNotFound)
	}
	return errors.New(errors.ErrorTypeElementNotFound, loc.String(), "query failed", fmt.Errorf("%w: %v", errors.ErrElementNotFound, err))
}

// WaitForElement waits until at least one node matches loc
func (s *ChromeSession) WaitForElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	nodes, err := s.waitNodes(ctx, loc, timeout, chromedp.NodeReady)
	if err != nil {
		return nil, err
	}
	return &chromeElement{node: nodes[0]}, nil
}

// WaitForClickable waits until a matching node is visible and not disabled
func (s *ChromeSession) WaitForClickable(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	deadline := time.Now().Add(timeout)

	nodes, err := s.waitNodes(ctx, loc, timeout, chromedp.NodeVisible)
	if err != nil {
		return nil, err
	}
	node := nodes[0]

	err = wait.Until(ctx, time.Until(deadline), nil, func(context.Context) (bool, error) {
		_, disabled := node.Attribute("disabled")
		return !disabled, nil
	})
	switch {
	case err == nil:
		return &chromeElement{node: node}, nil
	case errors.Is(err, wait.ErrTimeout):
		return nil, errors.New(errors.ErrorTypeElementNotFound, loc.String(), "element stayed disabled", errors.ErrElementNotFound)
	default:
		return nil, errors.New(errors.ErrorTypeCancelled, loc.String(), "", err)
	}
}

// FindAll waits up to timeout for matches and returns all of them
func (s *ChromeSession) FindAll(ctx context.Context, loc Locator, timeout time.Duration) ([]Element, error) {
	nodes, err := s.waitNodes(ctx, loc, timeout, chromedp.NodeReady)
	if err != nil {
		if errors.Is(err, errors.ErrElementNotFound) {
			return []Element{}, nil
		}
		return nil, err
	}
	return wrapNodes(nodes), nil
}

// Count returns how many nodes currently match loc
func (s *ChromeSession) Count(ctx context.Context, loc Locator) (int, error) {
	runCtx, cancel := s.bound(ctx, 0)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(loc.Query(), &nodes, queryOption(loc), chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func wrapNodes(nodes []*cdp.Node) []Element {
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = &chromeElement{node: n}
	}
	return out
}

func nodeOf(el Element) (*cdp.Node, error) {
	ce, ok := el.(*chromeElement)
	if !ok || ce.node == nil {
		return nil, fmt.Errorf("element %T does not belong to a chrome session", el)
	}
	return ce.node, nil
}

func (s *ChromeSession) runOnNode(ctx context.Context, step string, el Element, action func(n *cdp.Node) chromedp.Action) error {
	node, err := nodeOf(el)
	if err != nil {
		return errors.New(errors.ErrorTypeElementNotFound, step, "", err)
	}

	runCtx, cancel := s.bound(ctx, 0)
	defer cancel()

	if err := chromedp.Run(runCtx, action(node)); err != nil {
		if ctx.Err() != nil {
			return errors.New(errors.ErrorTypeCancelled, step, "", ctx.Err())
		}
		return errors.New(errors.ErrorTypeElementNotFound, step, "", err)
	}
	return nil
}

// Click dispatches a mouse click at the element's center
func (s *ChromeSession) Click(ctx context.Context, el Element) error {
	return s.runOnNode(ctx, "click", el, func(n *cdp.Node) chromedp.Action {
		return chromedp.MouseClickNode(n)
	})
}

// Clear empties an input element
func (s *ChromeSession) Clear(ctx context.Context, el Element) error {
	return s.runOnNode(ctx, "clear", el, func(n *cdp.Node) chromedp.Action {
		return chromedp.Clear([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID)
	})
}

// Type sends keystrokes to an element
func (s *ChromeSession) Type(ctx context.Context, el Element, text string) error {
	return s.runOnNode(ctx, "type", el, func(n *cdp.Node) chromedp.Action {
		return chromedp.SendKeys([]cdp.NodeID{n.NodeID}, text, chromedp.ByNodeID)
	})
}

// RunScript resolves the node to a JS object and calls fn on it
func (s *ChromeSession) RunScript(ctx context.Context, fn string, el Element) error {
	return s.runOnNode(ctx, "script", el, func(n *cdp.Node) chromedp.Action {
		return chromedp.ActionFunc(func(ctx context.Context) error {
			obj, err := dom.ResolveNode().WithNodeID(n.NodeID).Do(ctx)
			if err != nil {
				return fmt.Errorf("resolve node: %w", err)
			}
			_, exc, err := runtime.CallFunctionOn(fn).WithObjectID(obj.ObjectID).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return exc
			}
			return nil
		})
	})
}

// Close shuts the browser down. Safe to call more than once.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		if s.reviewDelay > 0 && s.ctx.Err() == nil {
			time.Sleep(s.reviewDelay)
		}
		if s.ctx.Err() == nil {
			s.closeErr = chromedp.Cancel(s.ctx)
		}
		s.cancel()
		s.log.Debug("Browser session closed")
	})
	return s.closeErr
}

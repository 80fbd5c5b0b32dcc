package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"igfetch/pkg/browser"
	"igfetch/pkg/config"
	"igfetch/pkg/errors"
	"igfetch/pkg/logger"
	"igfetch/pkg/models"
	"igfetch/pkg/wait"
)

// State is a step of the site interaction protocol
type State string

const (
	StateInit            State = "init"
	StateOpened          State = "opened"
	StateConsentHandled  State = "consent_handled"
	StateTargetSubmitted State = "target_submitted"
	StateTabSelected     State = "tab_selected"
	StatePaginated       State = "paginated"
	StateCollected       State = "collected"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// removeScript detaches the element it is called on
const removeScript = "function() { this.remove(); }"

// Transition is one recorded state change
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}

// locators are the parsed site selectors
type locators struct {
	consent, popup, input, submit, storiesTab, seeMore, anchors browser.Locator
}

func parseLocators(sel config.SelectorConfig) (locators, error) {
	var (
		l    locators
		errs []error
	)
	parse := func(name string, s config.Selector, dst *browser.Locator) {
		st, err := browser.ParseStrategy(s.Strategy)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = browser.Locator{Strategy: st, Value: s.Value}
	}
	parse("consent", sel.Consent, &l.consent)
	parse("popup", sel.Popup, &l.popup)
	parse("search_input", sel.SearchInput, &l.input)
	parse("submit_button", sel.SubmitButton, &l.submit)
	parse("stories_tab", sel.StoriesTab, &l.storiesTab)
	parse("see_more", sel.SeeMore, &l.seeMore)
	parse("result_anchors", sel.ResultAnchors, &l.anchors)

	if err := stderrors.Join(errs...); err != nil {
		return l, errors.New(errors.ErrorTypeConfig, "selectors", "", err)
	}
	return l, nil
}

// Sequencer drives one browser session through the site protocol for one
// request and produces the unvalidated candidate list
type Sequencer struct {
	session  browser.Session
	loc      locators
	entryURL string
	timeouts config.TimeoutConfig
	maxPages int
	logger   logger.Logger
	now      func() time.Time

	mu           sync.Mutex
	state        State
	transitions  []Transition
	clicks       int
	onTransition func(Transition)
}

// NewSequencer prepares a sequencer bound to sess
func NewSequencer(sess browser.Session, cfg *config.Config, log logger.Logger) (*Sequencer, error) {
	loc, err := parseLocators(cfg.Site.Selectors)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}
	maxPages := cfg.Pagination.MaxAttempts
	if maxPages > config.MaxSeeMoreClicks {
		maxPages = config.MaxSeeMoreClicks
	}
	return &Sequencer{
		session:  sess,
		loc:      loc,
		entryURL: cfg.Site.EntryURL,
		timeouts: cfg.Timeouts,
		maxPages: maxPages,
		logger:   log,
		now:      time.Now,
		state:    StateInit,
	}, nil
}

// State returns the current state
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns the state changes so far
func (s *Sequencer) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.transitions...)
}

// PaginationClicks returns how many times "see more" was clicked
func (s *Sequencer) PaginationClicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks
}

// OnTransition registers fn to be called after every state change
func (s *Sequencer) OnTransition(fn func(Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
}

func (s *Sequencer) to(next State, err error) {
	s.mu.Lock()
	tr := Transition{From: s.state, To: next, At: s.now(), Err: err}
	s.transitions = append(s.transitions, tr)
	s.state = next
	hook := s.onTransition
	s.mu.Unlock()

	s.logger.DebugWithFields("Sequencer transition", map[string]interface{}{
		"from": tr.From,
		"to":   tr.To,
	})
	if hook != nil {
		hook(tr)
	}
}

// Run executes the protocol. A missing stories tab ends the run with
// errors.ErrNoStories and no links.
func (s *Sequencer) Run(ctx context.Context, req models.ScrapeRequest) ([]models.CandidateLink, error) {
	links, err := s.run(ctx, req)
	switch {
	case err == nil:
		s.to(StateDone, nil)
	case errors.Is(err, errors.ErrNoStories):
		s.to(StateDone, err)
	default:
		s.to(StateFailed, err)
	}
	return links, err
}

func (s *Sequencer) run(ctx context.Context, req models.ScrapeRequest) ([]models.CandidateLink, error) {
	started := time.Now()
	err := s.session.Navigate(ctx, s.entryURL)
	logger.LogStep(s.logger, "open", started, err)
	if err != nil {
		return nil, err
	}
	s.to(StateOpened, nil)

	if err := s.handleConsent(ctx); err != nil {
		return nil, err
	}
	if err := s.removePopup(ctx); err != nil {
		return nil, err
	}
	s.to(StateConsentHandled, nil)

	if err := s.submitTarget(ctx, req.Target()); err != nil {
		return nil, err
	}
	s.to(StateTargetSubmitted, nil)

	if req.Kind() == models.KindStories {
		if err := s.selectStoriesTab(ctx); err != nil {
			return nil, err
		}
		s.to(StateTabSelected, nil)

		if err := s.paginate(ctx); err != nil {
			return nil, err
		}
	}
	s.to(StatePaginated, nil)

	links, err := s.collect(ctx, req)
	if err != nil {
		return nil, err
	}
	s.to(StateCollected, nil)
	return links, nil
}

// optional reports whether err only says the control was absent
func optional(err error) bool {
	return errors.Is(err, errors.ErrElementNotFound)
}

func (s *Sequencer) handleConsent(ctx context.Context) error {
	started := time.Now()
	el, err := s.session.WaitForClickable(ctx, s.loc.consent, s.timeouts.Consent)
	if err != nil {
		if optional(err) {
			s.logger.Debug("No consent dialog shown")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		s.logger.WithError(err).Warn("Consent lookup failed, continuing")
		return nil
	}

	err = s.session.Click(ctx, el)
	logger.LogStep(s.logger, "consent", started, err)
	if err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

func (s *Sequencer) removePopup(ctx context.Context) error {
	el, err := s.session.WaitForElement(ctx, s.loc.popup, s.timeouts.Popup)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return nil
	}

	if err := s.session.RunScript(ctx, removeScript, el); err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.logger.WithError(err).Warn("Failed to remove popup, continuing")
		return nil
	}
	s.logger.Debug("Popup removed")
	return nil
}

func (s *Sequencer) submitTarget(ctx context.Context, target string) (err error) {
	started := time.Now()
	defer func() { logger.LogStep(s.logger, "submit", started, err) }()

	input, err := s.session.WaitForElement(ctx, s.loc.input, s.timeouts.Input)
	if err != nil {
		return err
	}
	if err := s.session.Clear(ctx, input); err != nil {
		return err
	}
	if err := s.session.Type(ctx, input, target); err != nil {
		return err
	}

	button, err := s.session.WaitForClickable(ctx, s.loc.submit, s.timeouts.Submit)
	if err != nil {
		return err
	}
	return s.session.Click(ctx, button)
}

func (s *Sequencer) selectStoriesTab(ctx context.Context) (err error) {
	started := time.Now()
	defer func() { logger.LogStep(s.logger, "stories_tab", started, err) }()

	tab, err := s.session.WaitForClickable(ctx, s.loc.storiesTab, s.timeouts.StoriesTab)
	if err != nil {
		if optional(err) {
			return errors.New(errors.ErrorTypeElementNotFound, "stories_tab", "", errors.ErrNoStories)
		}
		return err
	}
	return s.session.Click(ctx, tab)
}

// paginate clicks "see more" until it disappears or maxPages clicks were made
func (s *Sequencer) paginate(ctx context.Context) error {
	for attempt := 1; attempt <= s.maxPages; attempt++ {
		button, err := s.session.WaitForClickable(ctx, s.loc.seeMore, s.timeouts.SeeMore)
		if err != nil {
			if optional(err) {
				s.logger.DebugWithFields("No more pages", map[string]interface{}{"attempt": attempt})
				return nil
			}
			return err
		}

		before, err := s.session.Count(ctx, s.loc.anchors)
		if err != nil {
			return err
		}
		if err := s.session.Click(ctx, button); err != nil {
			return err
		}

		s.mu.Lock()
		s.clicks++
		s.mu.Unlock()

		if err := s.settle(ctx, before); err != nil {
			return err
		}
	}

	s.logger.DebugWithFields("Pagination limit reached", map[string]interface{}{"max_attempts": s.maxPages})
	return nil
}

// settle waits until the anchor count grows past before or the settle window ends
func (s *Sequencer) settle(ctx context.Context, before int) error {
	err := wait.Until(ctx, s.timeouts.Settle, wait.DefaultPollBackoff(), func(ctx context.Context) (bool, error) {
		n, err := s.session.Count(ctx, s.loc.anchors)
		if err != nil {
			return false, err
		}
		return n > before, nil
	})
	if err == nil || stderrors.Is(err, wait.ErrTimeout) {
		return nil
	}
	if ctx.Err() != nil {
		return errors.New(errors.ErrorTypeCancelled, "paginate", "", ctx.Err())
	}
	return err
}

func (s *Sequencer) collect(ctx context.Context, req models.ScrapeRequest) ([]models.CandidateLink, error) {
	started := time.Now()
	anchors, err := s.session.FindAll(ctx, s.loc.anchors, s.timeouts.Anchors)
	if err == nil && len(anchors) == 0 {
		err = errors.New(errors.ErrorTypeElementNotFound, "collect", "no result links on page", errors.ErrElementNotFound)
	}
	logger.LogStep(s.logger, "collect", started, err)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(s.entryURL)
	kind := models.LinkKindFor(req.Kind())
	found := s.now()

	links := make([]models.CandidateLink, 0, len(anchors))
	for _, a := range anchors {
		href, _ := a.Attribute("href")
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		links = append(links, models.CandidateLink{
			URL:          resolve(base, href),
			Kind:         kind,
			SourceTarget: req.Target(),
			Ordinal:      len(links) + 1,
			Status:       models.ValidationStatus{State: models.StatePending},
			DiscoveredAt: found,
		})
	}

	s.logger.InfoWithFields("Collected result links", map[string]interface{}{
		"anchors": len(anchors),
		"links":   len(links),
	})
	return links, nil
}

// resolve makes relative hrefs absolute against the entry page
func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil || ref.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}

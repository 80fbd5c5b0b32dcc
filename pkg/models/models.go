package models

import (
	"fmt"
	"time"
)

// Kind is the kind of extraction a request asks for
type Kind string

const (
	KindStories Kind = "stories"
	KindReel    Kind = "reel"
)

// LinkKind tags a discovered link with the kind of media it came from
type LinkKind string

const (
	LinkStory LinkKind = "story"
	LinkReel  LinkKind = "reel"
)

// LinkKindFor maps a request kind to the kind of links it yields
func LinkKindFor(k Kind) LinkKind {
	if k == KindReel {
		return LinkReel
	}
	return LinkStory
}

// ScrapeRequest is an immutable extraction request.
// Build it with instagram.NewStoriesRequest or instagram.NewReelRequest.
type ScrapeRequest struct {
	kind   Kind
	target string
}

// NewScrapeRequest is used by the target parsers once input has been validated
func NewScrapeRequest(kind Kind, target string) ScrapeRequest {
	return ScrapeRequest{kind: kind, target: target}
}

func (r ScrapeRequest) Kind() Kind { return r.kind }
func (r ScrapeRequest) Target() string { return r.target }
func (r ScrapeRequest) IsZero() bool { return r.kind == "" && r.target == "" }
func (r ScrapeRequest) String() string { return fmt.Sprintf("%s %s", r.kind, r.target) }

// ValidationState is the outcome class of a link check
type ValidationState string

const (
	StatePending      ValidationState = "pending"
	StateValid        ValidationState = "valid"
	StateHTTPError    ValidationState = "http_error"
	StateTimeout      ValidationState = "timeout"
	StateNetworkError ValidationState = "network_error"
)

// ValidationStatus is the result of probing one link
type ValidationStatus struct {
	State  ValidationState `json:"state"`
	Code   int             `json:"code,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

func Valid() ValidationStatus { return ValidationStatus{State: StateValid} }
func HTTPError(code int) ValidationStatus { return ValidationStatus{State: StateHTTPError, Code: code} }
func Timeout() ValidationStatus { return ValidationStatus{State: StateTimeout} }
func NetworkError(r string) ValidationStatus { return ValidationStatus{State: StateNetworkError, Reason: r} }

func (s ValidationStatus) IsValid() bool { return s.State == StateValid }

func (s ValidationStatus) String() string {
	switch s.State {
	case StateValid:
		return "Valid"
	case StateHTTPError:
		return fmt.Sprintf("HTTP %d", s.Code)
	case StateTimeout:
		return "Timeout"
	case StateNetworkError:
		return "Network error: " + s.Reason
	default:
		return "Pending"
	}
}

// CandidateLink is a media URL discovered on the results page
type CandidateLink struct {
	URL          string           `json:"url"`
	Kind         LinkKind         `json:"kind"`
	SourceTarget string           `json:"source_target"`
	Ordinal      int              `json:"ordinal"`
	Status       ValidationStatus `json:"status"`
	ContentType  string           `json:"content_type,omitempty"`
	SizeBytes    *int64           `json:"size_bytes,omitempty"`
	Extension    string           `json:"extension,omitempty"`
	DiscoveredAt time.Time        `json:"discovered_at"`

	// Set only when media is persisted
	SavedPath string `json:"saved_path,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// SizeMB returns the reported size in megabytes, or -1 when unknown
func (c CandidateLink) SizeMB() float64 {
	if c.SizeBytes == nil {
		return -1
	}
	return float64(*c.SizeBytes) / (1024 * 1024)
}

// SessionStats are the process-wide counters
type SessionStats struct {
	StoriesRuns     int       `json:"stories_downloaded"`
	ReelsRuns       int       `json:"reels_downloaded"`
	TotalLinksFound int       `json:"total_links_found"`
	SessionStart    time.Time `json:"session_start"`
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	SessionStats
	Elapsed time.Duration `json:"elapsed"`
}

// RunOutcome is how an extraction run ended
type RunOutcome string

const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeNoContent RunOutcome = "no_content"
	OutcomeFailed    RunOutcome = "failed"
	OutcomeCancelled RunOutcome = "cancelled"
)

// HistoryEntry records one extraction run
type HistoryEntry struct {
	RunID      string          `json:"run_id"`
	Kind       Kind            `json:"type"`
	Target     string          `json:"target"`
	LinksFound int             `json:"links_found"`
	Timestamp  time.Time       `json:"timestamp"`
	Links      []CandidateLink `json:"links"`
	Outcome    RunOutcome      `json:"outcome"`
}

// RunReport is everything a caller can learn about one run
type RunReport struct {
	Request          ScrapeRequest
	Candidates       []CandidateLink
	Valid            []CandidateLink
	Failed           []CandidateLink
	Outcome          RunOutcome
	Err              error
	PaginationClicks int
	Duration         time.Duration
	RunID            string
}

package validator

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"igfetch/pkg/errors"
	"igfetch/pkg/logger"
	"igfetch/pkg/models"
	"igfetch/pkg/ratelimit"
)

// maxReasonLength bounds the transport error text kept in a NetworkError
const maxReasonLength = 30

// Result is the outcome of probing one URL
type Result struct {
	Status      models.ValidationStatus
	ContentType string
	SizeBytes   *int64
}

// Validator checks media URLs with HEAD requests
type Validator struct {
	httpClient *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) { v.httpClient = c }
}

// WithLimiter throttles checks and fetches
func WithLimiter(l ratelimit.Limiter) Option {
	return func(v *Validator) { v.limiter = l }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator sending userAgent with every request.
// The default client follows redirects; deadlines come from the request context.
func New(userAgent string, opts ...Option) *Validator {
	v := &Validator{
		httpClient: &http.Client{},
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "image/avif,image/webp,video/*,*/*;q=0.8",
		},
		limiter: ratelimit.Unlimited{},
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetHeader sets a custom header sent with every request
func (v *Validator) SetHeader(key, value string) {
	v.headers[key] = value
}

func (v *Validator) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range v.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	return req, nil
}

// Validate issues a HEAD request bounded by timeout and classifies the outcome.
// It never returns an error; failures are encoded in Result.Status.
func (v *Validator) Validate(ctx context.Context, url string, timeout time.Duration) Result {
	if err := v.limiter.Wait(ctx); err != nil {
		return Result{Status: models.NetworkError(truncate(err.Error()))}
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := v.newRequest(checkCtx, http.MethodHead, url)
	if err != nil {
		return Result{Status: models.NetworkError(truncate(err.Error()))}
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Result{Status: classifyTransportError(ctx, checkCtx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Status: models.HTTPError(resp.StatusCode)}
	}

	res := Result{
		Status:      models.Valid(),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") != "" {
		size := resp.ContentLength
		res.SizeBytes = &size
	}
	return res
}

// classifyTransportError separates our own deadline from other failures.
// A cancelled parent context is reported as a network error; callers check ctx.
func classifyTransportError(parent, check context.Context, err error) models.ValidationStatus {
	if parent.Err() == nil && stderrors.Is(check.Err(), context.DeadlineExceeded) {
		return models.Timeout()
	}
	var netErr net.Error
	if parent.Err() == nil && stderrors.As(err, &netErr) && netErr.Timeout() {
		return models.Timeout()
	}
	return models.NetworkError(truncate(rootCause(err).Error()))
}

func rootCause(err error) error {
	for {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxReasonLength {
		return s
	}
	return string([]rune(s)[:maxReasonLength])
}

// Classify maps a Content-Type to the file extension used when saving:
// jpg for images, mp4 for video, "" when unknown
func Classify(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"), strings.Contains(ct, "image"):
		return "jpg"
	case strings.HasPrefix(ct, "video/"), strings.Contains(ct, "video"):
		return "mp4"
	}
	return ""
}

// Fetch performs a full GET of url. The caller must close the body.
func (v *Validator) Fetch(ctx context.Context, url string) (io.ReadCloser, string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, "", errors.New(errors.ErrorTypeCancelled, "fetch", "", err)
	}

	req, err := v.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, "", errors.New(errors.ErrorTypeValidation, "fetch", "invalid URL", err)
	}

	start := time.Now()
	resp, err := v.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", errors.New(errors.ErrorTypeCancelled, "fetch", "", ctx.Err())
		}
		return nil, "", errors.New(errors.ErrorTypeValidation, "fetch", "request failed", err)
	}

	v.logger.DebugWithFields("Media fetch response", map[string]interface{}{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, "", errors.New(errors.ErrorTypeValidation, "fetch", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

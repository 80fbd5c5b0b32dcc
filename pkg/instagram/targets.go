package instagram

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"igfetch/pkg/errors"
	"igfetch/pkg/models"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// MaxUsernameLength is Instagram's username length limit
	MaxUsernameLength = 30
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)

// NormalizeUsername strips surrounding whitespace and a leading "@" and checks
// the result against Instagram's username rules
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimPrefix(strings.TrimSpace(raw), "@")

	switch {
	case username == "":
		return "", invalid("username is empty")
	case len(username) > MaxUsernameLength:
		return "", invalid(fmt.Sprintf("username longer than %d characters", MaxUsernameLength))
	case !usernamePattern.MatchString(username):
		return "", invalid("username may only contain letters, digits, '.' and '_'")
	case strings.HasPrefix(username, ".") || strings.HasSuffix(username, "."):
		return "", invalid("username cannot start or end with '.'")
	}
	return username, nil
}

// NormalizeReelURL defaults the scheme to https and checks that the URL points
// at an Instagram reel or post
func NormalizeReelURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", invalid("reel URL is empty")
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", invalid(fmt.Sprintf("malformed URL: %v", err))
	}
	if !strings.Contains(strings.ToLower(u.Host), "instagram.com") {
		return "", invalid("URL is not an instagram.com address")
	}
	if !strings.Contains(u.Path, "reel") && !strings.Contains(u.Path, "/p/") {
		return "", invalid("URL is not a reel or post link")
	}
	return u.String(), nil
}

// NewStoriesRequest validates a username and builds a stories request
func NewStoriesRequest(username string) (models.ScrapeRequest, error) {
	u, err := NormalizeUsername(username)
	if err != nil {
		return models.ScrapeRequest{}, err
	}
	return models.NewScrapeRequest(models.KindStories, u), nil
}

// NewReelRequest validates a reel URL and builds a reel request
func NewReelRequest(reelURL string) (models.ScrapeRequest, error) {
	u, err := NormalizeReelURL(reelURL)
	if err != nil {
		return models.ScrapeRequest{}, err
	}
	return models.NewScrapeRequest(models.KindReel, u), nil
}

// ProfileURL returns the public profile URL for a username
func ProfileURL(username string) string {
	return fmt.Sprintf("%s/%s/", BaseURL, url.PathEscape(username))
}

// Shortcode extracts the media shortcode from a reel or post URL, or "" if absent
func Shortcode(reelURL string) string {
	u, err := url.Parse(reelURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		switch parts[i] {
		case "reel", "reels", "p":
			return parts[i+1]
		}
	}
	return ""
}

// TargetLabel returns a filesystem-friendly label for a request target
func TargetLabel(req models.ScrapeRequest) string {
	if req.Kind() == models.KindReel {
		if sc := Shortcode(req.Target()); sc != "" {
			return sc
		}
		return "reel"
	}
	return req.Target()
}

func invalid(msg string) error {
	return errors.New(errors.ErrorTypeValidation, "target", msg, nil)
}

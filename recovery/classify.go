package recovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"google.golang.org/api/googleapi"

	"github.com/lordpython/aisoulstudio/production"
)

// HTTPError carries the status and body of a failed provider call so the
// classifier can see through to the HTTP layer. Providers that surface raw
// responses wrap them in this type before returning.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return e.Status
	}
	return "http status " + strconv.Itoa(e.StatusCode)
}

// ValidationError marks a schema or argument failure that retrying cannot
// fix.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string { return e.err.Error() }
func (e *ValidationError) Unwrap() error { return e.err }

// NewValidationError wraps an error as a validation failure.
func NewValidationError(err error) error {
	return &ValidationError{err: err}
}

// AuthError marks a missing or rejected credential.
type AuthError struct {
	err error
}

func (e *AuthError) Error() string { return e.err.Error() }
func (e *AuthError) Unwrap() error { return e.err }

// NewAuthError wraps an error as an authentication failure.
func NewAuthError(err error) error {
	return &AuthError{err: err}
}

// Classify assigns an error category at the point of capture. Transient
// covers everything a retry can plausibly clear (timeouts, connection
// failures, 5xx, 429); 4xx is permanent except for credentials; typed
// validation and auth errors keep their category; the rest is recoverable.
func Classify(err error) production.ErrorCategory {
	if err == nil {
		return ""
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return production.CategoryValidation
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		return production.CategoryAuthentication
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return production.CategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return production.CategoryTransient
	}

	if cat, ok := classifyStatus(statusCodeOf(err)); ok {
		return cat
	}

	return classifyMessage(err.Error())
}

// statusCodeOf extracts an HTTP status from the error chain, both from our
// own HTTPError and from Google API errors.
func statusCodeOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func classifyStatus(code int) (production.ErrorCategory, bool) {
	switch {
	case code == 0:
		return "", false
	case code == 429 || code >= 500:
		return production.CategoryTransient, true
	case code == 401 || code == 403:
		return production.CategoryAuthentication, true
	case code >= 400:
		return production.CategoryPermanent, true
	default:
		return production.CategoryRecoverable, true
	}
}

// classifyMessage is the last resort for errors from SDKs that expose
// nothing but a string.
func classifyMessage(msg string) production.ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "temporarily unavailable"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"):
		return production.CategoryTransient
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "credential"),
		strings.Contains(lower, "authentication"):
		return production.CategoryAuthentication
	default:
		return production.CategoryRecoverable
	}
}

// IsCloudflareChallenge reports whether the error is a Cloudflare
// bot-challenge response: a 403/503 whose HTML body carries the
// challenge-platform script. One animation provider returns these when it
// rate-limits; retrying never clears them, so the harness substitutes a
// different provider instead.
func IsCloudflareChallenge(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.StatusCode != 503 && httpErr.StatusCode != 403 {
		return false
	}
	return hasChallengeMarker(httpErr.Body)
}

// hasChallengeMarker parses the body as HTML and looks for the markers
// Cloudflare interposes: the challenge-platform script source or the
// challenge form id. Bodies that fail to parse fall back to a substring
// scan since challenge pages are served truncated under load.
func hasChallengeMarker(body string) bool {
	if body == "" {
		return false
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return strings.Contains(body, "challenge-platform")
	}

	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				switch attr.Key {
				case "src", "id", "class", "action":
					if strings.Contains(attr.Val, "challenge-platform") ||
						strings.Contains(attr.Val, "challenge-form") ||
						strings.Contains(attr.Val, "cf-challenge") {
						found = true
						return
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if !found {
		// Truncated bodies parse as bare text nodes.
		found = strings.Contains(body, "challenge-platform")
	}
	return found
}

package production

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for session id validation.
var (
	ErrSessionIDRequired    = errors.New("session id is required")
	ErrInvalidSessionID     = errors.New("invalid session id")
	ErrPlaceholderSessionID = errors.New("placeholder session id")
)

// Session id formats. Production sessions are created by plan_video and the
// import tools; screenplay sessions by generate_breakdown.
var (
	productionIDPattern = regexp.MustCompile(`^prod_[0-9]+_[a-z0-9]{5,12}$`)
	storyIDPattern      = regexp.MustCompile(`^story_[0-9]+$`)
	importIDPattern     = regexp.MustCompile(`^import_[0-9]+_[a-z0-9]{5,12}$`)
)

// placeholderPrefixes are id shapes LLM tool callers invent instead of
// passing the sessionId a planning tool returned. They get a pointed
// diagnostic rather than a generic format error.
var placeholderPrefixes = []string{
	"plan_",
	"cp_",
	"session_",
	"content_",
	"id_",
	"example_",
	"test_",
	"your_",
	"<",
}

// NewProductionID returns a fresh production session id, e.g.
// "prod_1714212345678_a1b2c3d4".
func NewProductionID() string {
	return fmt.Sprintf("prod_%d_%s", time.Now().UnixMilli(), randomTail(8))
}

// NewStoryID returns a fresh screenplay session id, e.g. "story_1714212345678".
func NewStoryID() string {
	return fmt.Sprintf("story_%d", time.Now().UnixMilli())
}

// NewImportID returns a fresh import session id, e.g.
// "import_1714212345678_a1b2c3d4".
func NewImportID() string {
	return fmt.Sprintf("import_%d_%s", time.Now().UnixMilli(), randomTail(8))
}

// randomTail returns n lowercase hex characters. UUID hex satisfies the
// [a-z0-9] tail alphabet.
func randomTail(n int) string {
	tail := strings.ReplaceAll(uuid.New().String(), "-", "")
	if n > len(tail) {
		n = len(tail)
	}
	return tail[:n]
}

// ValidateSessionID checks that id matches one of the accepted session id
// formats. Placeholder-looking ids (the kind an LLM makes up, like
// "plan_123" or "session_12345") are rejected with a diagnostic naming
// where real ids come from.
func ValidateSessionID(id string) error {
	if id == "" {
		return ErrSessionIDRequired
	}

	if productionIDPattern.MatchString(id) ||
		storyIDPattern.MatchString(id) ||
		importIDPattern.MatchString(id) {
		return nil
	}

	lower := strings.ToLower(id)
	for _, prefix := range placeholderPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return fmt.Errorf("%w: %q looks invented; pass the sessionId returned by plan_video or an import tool (e.g. prod_1714212345678_a1b2c3d4)",
				ErrPlaceholderSessionID, id)
		}
	}

	return fmt.Errorf("%w: %q does not match prod_<ts>_<tail>, story_<ts>, or import_<ts>_<tail>; use the sessionId a planning tool returned",
		ErrInvalidSessionID, id)
}

// IsStoryID reports whether id names a screenplay session.
func IsStoryID(id string) bool {
	return storyIDPattern.MatchString(id)
}

package resolver

import "errors"

// ErrorCategory classifies failures for exit codes and HTTP status mapping.
type ErrorCategory string

const (
	// CategoryInvalidURL marks rejected input. No network I/O was attempted.
	CategoryInvalidURL ErrorCategory = "invalid_url"
	// CategoryTransport marks timeouts, connection failures and redirect loops.
	CategoryTransport ErrorCategory = "transport"
	// CategoryParse marks a non-JSON body or malformed embedded state blob.
	CategoryParse ErrorCategory = "parse"
	// CategoryRender marks browser launch or navigation failures.
	CategoryRender ErrorCategory = "render"
	// CategoryInternal marks faults that escaped classification.
	CategoryInternal ErrorCategory = "internal"
)

// CategorizedError attaches a category to an underlying error.
type CategorizedError struct {
	Category ErrorCategory
	Err      error
}

func (e CategorizedError) Error() string {
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error {
	return e.Err
}

func wrapCategory(category ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err}
}

func errorCategory(err error) ErrorCategory {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryInternal
}

// IsRejected reports whether err is an input rejection (off-domain or
// malformed URL) rather than a resolution failure.
func IsRejected(err error) bool {
	return errorCategory(err) == CategoryInvalidURL
}

// ExitCode maps an error to a CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch errorCategory(err) {
	case CategoryInvalidURL:
		return 2
	case CategoryTransport:
		return 3
	case CategoryParse:
		return 4
	case CategoryRender:
		return 5
	default:
		return 1
	}
}

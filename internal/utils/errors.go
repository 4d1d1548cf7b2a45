package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(id int64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %d", id),
		Suggestion: "Check the id or use 'simpletasks task list' to see all tasks",
	}
}

// ErrBookmarkNotFound returns an error for when a bookmark is not found.
func ErrBookmarkNotFound(url string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("bookmark not found: %s", url),
		Suggestion: "Use 'simpletasks book list' to see saved bookmarks",
	}
}

// ErrEmptyField returns a validation error for a required field left blank.
// The returned error still matches cause with errors.Is.
func ErrEmptyField(cause error, field string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s", cause, field),
		Suggestion: "Please fill in all fields",
	}
}

// ErrInvalidFilter returns an error for an unknown task filter with valid options.
func ErrInvalidFilter(filter string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid filter: %s", filter),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrCacheUnavailable returns an error when the offline cache store cannot be opened.
func ErrCacheUnavailable(path string, err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("cache storage unavailable at %s: %w", path, err),
		Suggestion: "Check offline.cache_path in your config file",
	}
}

// ErrUpstreamOffline returns an error when the upstream origin is unreachable with smart suggestions.
func ErrUpstreamOffline(origin, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("upstream %s is offline: %s", origin, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrStorageNotConfigured returns an error for an unknown storage backend.
func ErrStorageNotConfigured(name string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("storage backend not configured: %s", name),
		Suggestion: "Set storage.backend to 'sqlite' or 'file' in your config file",
	}
}

// IsSuggestion reports whether err carries a suggestion somewhere in its chain.
func IsSuggestion(err error) bool {
	var s *ErrorWithSuggestion
	return errors.As(err, &s)
}

// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrCrawlInProgress is returned when a crawl is requested while another run is still active.
var ErrCrawlInProgress = errors.New("a crawl run is already in progress")

// ErrInvalidRepoFormat is returned when a repository identifier is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrUpstreamUnavailable is returned when the code-hosting platform could not serve
// a search page or a repository's metadata.
type ErrUpstreamUnavailable struct {
	Op     string
	Target string
	Err    error
}

func (e *ErrUpstreamUnavailable) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upstream unavailable: %s %s: empty response", e.Op, e.Target)
	}
	return fmt.Sprintf("upstream unavailable: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error {
	return e.Err
}

// IsInvalidRepoFormat reports whether err carries an *ErrInvalidRepoFormat.
func IsInvalidRepoFormat(err error) bool {
	var target *ErrInvalidRepoFormat
	return errors.As(err, &target)
}

// IsUpstreamUnavailable reports whether err carries an *ErrUpstreamUnavailable.
func IsUpstreamUnavailable(err error) bool {
	var target *ErrUpstreamUnavailable
	return errors.As(err, &target)
}

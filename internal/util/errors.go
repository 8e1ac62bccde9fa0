package util

import "fmt"

// UpstreamFailure wraps a 4xx/5xx response or network error observed
// while talking to an upstream index or file host during a metadata
// fetch. The HTTP layer typically maps it to 502 or 504.
type UpstreamFailure struct {
	URL string
	Err error
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("upstream failure for %s: %v", e.URL, e.Err)
}

func (e *UpstreamFailure) Unwrap() error {
	return e.Err
}

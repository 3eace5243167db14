package model

import (
	"fmt"
	"time"
)

// RateLimitError is raised by the API client when the upstream reports
// rate limiting (429, or 403 with zero remaining quota). RetryAfter is
// the computed wait; the client never retries by itself.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (x *RateLimitError) Error() string {
	return fmt.Sprintf("github API rate limited, retry after %s", x.RetryAfter)
}

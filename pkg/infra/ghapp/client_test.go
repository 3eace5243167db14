package ghapp_test

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-github/v53/github"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/infra/ghapp"
)

func TestRetryAfterFromHeader(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("prefers Retry-After seconds", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "120")
		header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(time.Hour).Unix(), 10))

		gt.V(t, ghapp.RetryAfterFromHeaderForTest(header, now)).Equal(2 * time.Minute)
	})

	t.Run("falls back to reset epoch", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(5*time.Minute).Unix(), 10))

		gt.V(t, ghapp.RetryAfterFromHeaderForTest(header, now)).Equal(5 * time.Minute)
	})

	t.Run("ignores reset epoch in the past", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(-time.Minute).Unix(), 10))

		gt.V(t, ghapp.RetryAfterFromHeaderForTest(header, now)).Equal(time.Minute)
	})

	t.Run("defaults when no headers are present", func(t *testing.T) {
		gt.V(t, ghapp.RetryAfterFromHeaderForTest(http.Header{}, now)).Equal(time.Minute)
	})

	t.Run("ignores malformed Retry-After", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "soon")

		gt.V(t, ghapp.RetryAfterFromHeaderForTest(header, now)).Equal(time.Minute)
	})
}

func TestMapAPIError(t *testing.T) {
	client := ghapp.New(nil)
	apiErr := errors.New("api failure")

	newResp := func(status int, header http.Header) *github.Response {
		return &github.Response{
			Response: &http.Response{
				StatusCode: status,
				Header:     header,
			},
		}
	}

	t.Run("429 becomes rate limit error", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "30")

		err := client.MapAPIErrorForTest(newResp(http.StatusTooManyRequests, header), apiErr)
		var rateLimitErr *model.RateLimitError
		gt.True(t, errors.As(err, &rateLimitErr))
		gt.V(t, rateLimitErr.RetryAfter).Equal(30 * time.Second)
	})

	t.Run("403 with exhausted quota becomes rate limit error", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-RateLimit-Remaining", "0")

		err := client.MapAPIErrorForTest(newResp(http.StatusForbidden, header), apiErr)
		var rateLimitErr *model.RateLimitError
		gt.True(t, errors.As(err, &rateLimitErr))
	})

	t.Run("403 with remaining quota is a plain error", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-RateLimit-Remaining", "42")

		err := client.MapAPIErrorForTest(newResp(http.StatusForbidden, header), apiErr)
		gt.Error(t, err)
		var rateLimitErr *model.RateLimitError
		gt.False(t, errors.As(err, &rateLimitErr))
	})

	t.Run("500 is a plain error", func(t *testing.T) {
		err := client.MapAPIErrorForTest(newResp(http.StatusInternalServerError, http.Header{}), apiErr)
		gt.Error(t, err)
		var rateLimitErr *model.RateLimitError
		gt.False(t, errors.As(err, &rateLimitErr))
	})

	t.Run("nil error passes through", func(t *testing.T) {
		gt.NoError(t, client.MapAPIErrorForTest(nil, nil))
	})
}

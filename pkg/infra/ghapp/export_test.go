package ghapp

import "github.com/google/go-github/v53/github"

// Export unexported functions for testing
var RetryAfterFromHeaderForTest = retryAfterFromHeader

func (x *Client) MapAPIErrorForTest(resp *github.Response, err error) error {
	return x.mapAPIError(resp, err)
}

package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidOption indicates a broken configuration value. It is fatal
	// and never retried.
	ErrInvalidOption = goerr.New("invalid option")

	// ErrConfigMissing indicates a required configuration value is absent.
	ErrConfigMissing = goerr.New("missing configuration")

	// ErrInvalidGitHubData indicates an inbound payload or API response
	// that cannot be interpreted.
	ErrInvalidGitHubData = goerr.New("invalid GitHub data")

	// ErrNoCredential indicates that neither a user OAuth token nor an
	// installation token could be resolved.
	ErrNoCredential = goerr.New("no credential available")
)

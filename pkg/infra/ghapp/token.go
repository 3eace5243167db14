package ghapp

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v53/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
)

// refreshMargin renews an installation token before GitHub's ~1h
// expiry so a token never expires mid-operation.
const refreshMargin = 5 * time.Minute

type cachedToken struct {
	token     types.GitHubToken
	expiresAt time.Time
}

func (x *cachedToken) valid(now time.Time) bool {
	return x != nil && now.Before(x.expiresAt.Add(-refreshMargin))
}

// TokenResolver picks the best available credential for an outbound
// call: the signed-in user's OAuth token when one is stored, else an
// installation token minted through the app JWT exchange. The token
// cache is owned by the resolver, not a package singleton, so tests
// can build and discard resolvers freely. Concurrent refreshes for the
// same installation both produce valid tokens; last write wins.
type TokenResolver struct {
	appID      types.GitHubAppID
	pem        types.GitHubAppPrivateKey
	transport  http.RoundTripper
	userTokens interfaces.UserTokenSource

	mu    sync.Mutex
	cache map[types.GitHubAppInstallID]*cachedToken
	now   func() time.Time
}

var _ interfaces.TokenSource = (*TokenResolver)(nil)

type TokenResolverOption func(*TokenResolver)

// WithUserTokenSource enables the user-OAuth preference.
func WithUserTokenSource(src interfaces.UserTokenSource) TokenResolverOption {
	return func(x *TokenResolver) {
		x.userTokens = src
	}
}

// WithTransport replaces the HTTP transport of the app JWT exchange.
func WithTransport(rt http.RoundTripper) TokenResolverOption {
	return func(x *TokenResolver) {
		x.transport = rt
	}
}

// WithNowFunc replaces the clock used for expiry checks.
func WithNowFunc(now func() time.Time) TokenResolverOption {
	return func(x *TokenResolver) {
		x.now = now
	}
}

func NewTokenResolver(appID types.GitHubAppID, pem types.GitHubAppPrivateKey, options ...TokenResolverOption) (*TokenResolver, error) {
	if appID == 0 {
		return nil, goerr.Wrap(types.ErrInvalidOption, "appID is empty")
	}
	if pem == "" {
		return nil, goerr.Wrap(types.ErrInvalidOption, "pem is empty")
	}

	resolver := &TokenResolver{
		appID:     appID,
		pem:       pem,
		transport: http.DefaultTransport,
		cache:     make(map[types.GitHubAppInstallID]*cachedToken),
		now:       time.Now,
	}
	for _, opt := range options {
		opt(resolver)
	}

	return resolver, nil
}

// Resolve returns a credential for the given user and installation. A
// stored user OAuth token wins; otherwise an installation token is
// minted (or served from cache). types.ErrNoCredential is returned
// when neither source works.
func (x *TokenResolver) Resolve(ctx context.Context, userID types.GitHubUserID, installID types.GitHubAppInstallID) (types.GitHubToken, error) {
	if userID != 0 && x.userTokens != nil {
		token, err := x.userTokens.UserToken(ctx, userID)
		if err != nil {
			return "", goerr.Wrap(err, "failed to look up user token", goerr.V("userID", userID))
		}
		if token != "" {
			return token, nil
		}
	}

	if installID == 0 {
		return "", goerr.Wrap(types.ErrNoCredential, "no user token and no installation ID")
	}

	return x.installationToken(ctx, installID)
}

func (x *TokenResolver) installationToken(ctx context.Context, installID types.GitHubAppInstallID) (types.GitHubToken, error) {
	now := x.now()

	x.mu.Lock()
	cached := x.cache[installID]
	x.mu.Unlock()

	if cached.valid(now) {
		return cached.token, nil
	}

	token, expiresAt, err := x.mintInstallationToken(ctx, installID)
	if err != nil {
		return "", err
	}

	x.mu.Lock()
	x.cache[installID] = &cachedToken{token: token, expiresAt: expiresAt}
	x.mu.Unlock()

	logging.From(ctx).Debug("minted installation token",
		slog.Any("installID", installID),
		slog.Time("expiresAt", expiresAt),
	)

	return token, nil
}

// mintInstallationToken signs a short-lived app JWT (RS256, 10 minute
// expiry via ghinstallation's AppsTransport) and exchanges it for an
// installation access token.
func (x *TokenResolver) mintInstallationToken(ctx context.Context, installID types.GitHubAppInstallID) (types.GitHubToken, time.Time, error) {
	atr, err := ghinstallation.NewAppsTransport(x.transport, int64(x.appID), []byte(x.pem))
	if err != nil {
		return "", time.Time{}, goerr.Wrap(err, "failed to create app transport")
	}

	client := github.NewClient(&http.Client{Transport: atr})
	token, _, err := client.Apps.CreateInstallationToken(ctx, int64(installID), nil)
	if err != nil {
		return "", time.Time{}, goerr.Wrap(types.ErrNoCredential, "failed to create installation token",
			goerr.V("installID", installID),
			goerr.V("cause", err.Error()),
		)
	}

	return types.GitHubToken(token.GetToken()), token.GetExpiresAt().Time, nil
}

// FindInstallation looks up the app installation covering the given
// repository. Used by the CLI when no installation ID is given.
func (x *TokenResolver) FindInstallation(ctx context.Context, owner, repo string) (types.GitHubAppInstallID, error) {
	atr, err := ghinstallation.NewAppsTransport(x.transport, int64(x.appID), []byte(x.pem))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create app transport")
	}

	client := github.NewClient(&http.Client{Transport: atr})
	install, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return 0, goerr.Wrap(types.ErrNoCredential, "failed to find repository installation",
			goerr.V("owner", owner),
			goerr.V("repo", repo),
			goerr.V("cause", err.Error()),
		)
	}

	return types.GitHubAppInstallID(install.GetID()), nil
}

// Reset drops all cached tokens.
func (x *TokenResolver) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.cache = make(map[types.GitHubAppInstallID]*cachedToken)
}

package infra

import (
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
)

type Clients struct {
	github   interfaces.GitHubClient
	tokens   interfaces.TokenSource
	repo     interfaces.SyncRepository
	queue    interfaces.Queue
	bqClient interfaces.BigQuery
}

type Option func(*Clients)

func New(options ...Option) *Clients {
	client := &Clients{}

	for _, opt := range options {
		opt(client)
	}

	return client
}

func (x *Clients) GitHub() interfaces.GitHubClient {
	return x.github
}
func (x *Clients) Tokens() interfaces.TokenSource {
	return x.tokens
}
func (x *Clients) SyncRepository() interfaces.SyncRepository {
	return x.repo
}
func (x *Clients) Queue() interfaces.Queue {
	return x.queue
}
func (x *Clients) BigQuery() interfaces.BigQuery {
	return x.bqClient
}

func WithGitHub(client interfaces.GitHubClient) Option {
	return func(x *Clients) {
		x.github = client
	}
}

func WithTokens(tokens interfaces.TokenSource) Option {
	return func(x *Clients) {
		x.tokens = tokens
	}
}

func WithSyncRepository(repo interfaces.SyncRepository) Option {
	return func(x *Clients) {
		x.repo = repo
	}
}

func WithQueue(q interfaces.Queue) Option {
	return func(x *Clients) {
		x.queue = q
	}
}

func WithBigQuery(client interfaces.BigQuery) Option {
	return func(x *Clients) {
		x.bqClient = client
	}
}

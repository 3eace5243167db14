package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gots/slice"
	"github.com/m-mizutani/hubsync/pkg/cli/config"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/infra"
	"github.com/m-mizutani/hubsync/pkg/infra/ghapp"
	"github.com/m-mizutani/hubsync/pkg/infra/queue"
	"github.com/m-mizutani/hubsync/pkg/repository/memory"
	"github.com/m-mizutani/hubsync/pkg/usecase"
	"github.com/m-mizutani/hubsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func syncCommand() *cli.Command {
	var (
		owner     string
		repoName  string
		installID int64
		dir       string

		githubApp config.GitHubApp
		firestore config.Firestore
		syncCfg   config.Sync
	)

	return &cli.Command{
		Name:  "sync",
		Usage: "Connect one repository and run its bootstrap backfill",
		Flags: slice.Flatten([]cli.Flag{
			&cli.StringFlag{
				Name:        "github-owner",
				Usage:       "GitHub repository owner (auto-detect from git if not specified)",
				Sources:     cli.EnvVars("HUBSYNC_GITHUB_OWNER"),
				Destination: &owner,
			},
			&cli.StringFlag{
				Name:        "github-repo",
				Usage:       "GitHub repository name (auto-detect from git if not specified)",
				Sources:     cli.EnvVars("HUBSYNC_GITHUB_REPO"),
				Destination: &repoName,
			},
			&cli.Int64Flag{
				Name:        "installation-id",
				Usage:       "GitHub App installation ID (resolved via the app if not specified)",
				Sources:     cli.EnvVars("HUBSYNC_INSTALLATION_ID"),
				Destination: &installID,
			},
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "Path to local git checkout for auto-detection",
				Value:       ".",
				Destination: &dir,
			},
		},
			githubApp.Flags(),
			firestore.Flags(),
			syncCfg.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			if owner == "" || repoName == "" {
				detectedOwner, detectedName, err := detectRepoFromGit(dir)
				if err != nil {
					return goerr.Wrap(err, "owner/repo not given and auto-detection failed")
				}
				if owner == "" {
					owner = detectedOwner
				}
				if repoName == "" {
					repoName = detectedName
				}
			}

			tokens, err := githubApp.NewTokenResolver()
			if err != nil {
				return err
			}

			if installID == 0 {
				found, err := tokens.FindInstallation(ctx, owner, repoName)
				if err != nil {
					return err
				}
				installID = int64(found)
			}

			logging.Default().Info("starting sync",
				slog.String("owner", owner),
				slog.String("repo", repoName),
				slog.Int64("installationID", installID),
			)

			repo := memory.New()
			if firestore.Enabled() {
				fsRepo, err := firestore.NewRepository(ctx)
				if err != nil {
					return err
				}
				repo = fsRepo
			} else {
				logging.Default().Warn("no Firestore configured, results stay in memory")
			}

			ghClient := ghapp.New(tokens)

			// The inline queue makes the bootstrap run to completion
			// inside ConnectRepository.
			q := queue.New(queue.WithInline())

			clients := infra.New(
				infra.WithGitHub(ghClient),
				infra.WithTokens(tokens),
				infra.WithSyncRepository(repo),
				infra.WithQueue(q),
			)
			uc := usecase.New(clients, syncCfg.Options()...)
			q.SetHandler(uc.HandleTask)

			target, err := findInstallationRepo(ctx, ghClient, types.GitHubAppInstallID(installID), owner, repoName)
			if err != nil {
				return err
			}

			if err := uc.ConnectRepository(ctx, target); err != nil {
				return err
			}
			q.Wait()

			job, err := latestJobState(ctx, clients, target.ID)
			if err != nil {
				return err
			}
			logging.Default().Info("sync finished",
				slog.String("state", job),
				slog.String("owner", owner),
				slog.String("repo", repoName),
			)

			return nil
		},
	}
}

func findInstallationRepo(ctx context.Context, gh *ghapp.Client, installID types.GitHubAppInstallID, owner, name string) (*model.Repository, error) {
	repos, err := gh.ListInstallationRepos(ctx, installID)
	if err != nil {
		return nil, err
	}

	for _, repo := range repos {
		if repo.Owner == owner && repo.Name == name {
			return repo, nil
		}
	}

	return nil, goerr.New("repository is not covered by the installation",
		goerr.V("owner", owner),
		goerr.V("repo", name),
		goerr.V("installID", installID),
	)
}

func latestJobState(ctx context.Context, clients *infra.Clients, repoID types.GitHubRepoID) (string, error) {
	states := []model.SyncJobState{
		model.SyncJobStateDone,
		model.SyncJobStateFailed,
		model.SyncJobStateRetry,
		model.SyncJobStateRunning,
		model.SyncJobStatePending,
	}

	for _, state := range states {
		jobs, err := clients.SyncRepository().ListSyncJobsByState(ctx, state, 0)
		if err != nil {
			return "", err
		}
		for _, job := range jobs {
			if job.RepositoryID == repoID {
				return string(job.State), nil
			}
		}
	}

	return "unknown", nil
}

package firestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toBranchDocID converts a branch name to a Firestore-safe document ID.
// Replaces "/" with ":" since Git branch names can contain "/" (e.g.
// "feature/foo") but Git ref names cannot contain ":", so the
// replacement is safe and reversible. The branch name stored in the
// document itself remains unchanged.
func toBranchDocID(branchName types.BranchName) string {
	return strings.ReplaceAll(string(branchName), "/", ":")
}

func prFilesDocID(number int, headSHA types.CommitSHA) string {
	return fmt.Sprintf("%d:%s", number, headSHA)
}

// prFilesDoc wraps the file list; Firestore documents cannot be bare
// arrays.
type prFilesDoc struct {
	Number  int
	HeadSHA types.CommitSHA
	Files   []*model.PullRequestFile
}

// Repository records

func (r *syncRepository) SaveRepository(ctx context.Context, repo *model.Repository) error {
	if _, err := r.repoDoc(repo.ID).Set(ctx, repo); err != nil {
		return goerr.Wrap(err, "failed to save repository",
			goerr.V("repoID", repo.ID),
		)
	}
	return nil
}

func (r *syncRepository) GetRepository(ctx context.Context, repoID types.GitHubRepoID) (*model.Repository, error) {
	snap, err := r.repoDoc(repoID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
				goerr.V("repoID", repoID),
			)
		}
		return nil, goerr.Wrap(err, "failed to get repository",
			goerr.V("repoID", repoID),
		)
	}

	var repo model.Repository
	if err := snap.DataTo(&repo); err != nil {
		return nil, goerr.Wrap(err, "failed to decode repository",
			goerr.V("repoID", repoID),
		)
	}

	return &repo, nil
}

func (r *syncRepository) ListRepositoriesByInstallation(ctx context.Context, installID types.GitHubAppInstallID) ([]*model.Repository, error) {
	iter := r.client.Collection(collectionRepo).
		Where("InstallationID", "==", int64(installID)).
		Documents(ctx)
	defer iter.Stop()

	var repos []*model.Repository
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate repositories",
				goerr.V("installID", installID),
			)
		}

		var repo model.Repository
		if err := snap.DataTo(&repo); err != nil {
			return nil, goerr.Wrap(err, "failed to decode repository")
		}

		repos = append(repos, &repo)
	}

	return repos, nil
}

// Branches

func (r *syncRepository) SaveBranch(ctx context.Context, repoID types.GitHubRepoID, branch *model.Branch) error {
	docRef := r.repoDoc(repoID).Collection(collectionBranch).Doc(toBranchDocID(branch.Name))
	if _, err := docRef.Set(ctx, branch); err != nil {
		return goerr.Wrap(err, "failed to save branch",
			goerr.V("repoID", repoID),
			goerr.V("branchName", branch.Name),
		)
	}
	return nil
}

func (r *syncRepository) ListBranches(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Branch, error) {
	iter := r.repoDoc(repoID).Collection(collectionBranch).Documents(ctx)
	defer iter.Stop()

	var branches []*model.Branch
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate branches",
				goerr.V("repoID", repoID),
			)
		}

		var branch model.Branch
		if err := snap.DataTo(&branch); err != nil {
			return nil, goerr.Wrap(err, "failed to decode branch")
		}

		branches = append(branches, &branch)
	}

	return branches, nil
}

// Pull requests

func (r *syncRepository) GetPullRequest(ctx context.Context, repoID types.GitHubRepoID, number int) (*model.PullRequest, error) {
	docRef := r.repoDoc(repoID).Collection(collectionPullRequest).Doc(int64DocID(int64(number)))
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "pull request not found",
				goerr.V("repoID", repoID),
				goerr.V("number", number),
			)
		}
		return nil, goerr.Wrap(err, "failed to get pull request",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
		)
	}

	var pr model.PullRequest
	if err := snap.DataTo(&pr); err != nil {
		return nil, goerr.Wrap(err, "failed to decode pull request",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
		)
	}

	return &pr, nil
}

func (r *syncRepository) SavePullRequest(ctx context.Context, repoID types.GitHubRepoID, pr *model.PullRequest) error {
	docRef := r.repoDoc(repoID).Collection(collectionPullRequest).Doc(int64DocID(int64(pr.Number)))
	if _, err := docRef.Set(ctx, pr); err != nil {
		return goerr.Wrap(err, "failed to save pull request",
			goerr.V("repoID", repoID),
			goerr.V("number", pr.Number),
		)
	}
	return nil
}

func (r *syncRepository) ListPullRequests(ctx context.Context, repoID types.GitHubRepoID) ([]*model.PullRequest, error) {
	iter := r.repoDoc(repoID).Collection(collectionPullRequest).Documents(ctx)
	defer iter.Stop()
	return decodePullRequests(iter, repoID)
}

func (r *syncRepository) ListOpenPullRequests(ctx context.Context, repoID types.GitHubRepoID) ([]*model.PullRequest, error) {
	iter := r.repoDoc(repoID).Collection(collectionPullRequest).
		Where("State", "==", "open").
		Documents(ctx)
	defer iter.Stop()
	return decodePullRequests(iter, repoID)
}

func decodePullRequests(iter *firestore.DocumentIterator, repoID types.GitHubRepoID) ([]*model.PullRequest, error) {
	var pulls []*model.PullRequest
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate pull requests",
				goerr.V("repoID", repoID),
			)
		}

		var pr model.PullRequest
		if err := snap.DataTo(&pr); err != nil {
			return nil, goerr.Wrap(err, "failed to decode pull request")
		}

		pulls = append(pulls, &pr)
	}

	return pulls, nil
}

// Issues

func (r *syncRepository) GetIssue(ctx context.Context, repoID types.GitHubRepoID, number int) (*model.Issue, error) {
	docRef := r.repoDoc(repoID).Collection(collectionIssue).Doc(int64DocID(int64(number)))
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "issue not found",
				goerr.V("repoID", repoID),
				goerr.V("number", number),
			)
		}
		return nil, goerr.Wrap(err, "failed to get issue",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
		)
	}

	var issue model.Issue
	if err := snap.DataTo(&issue); err != nil {
		return nil, goerr.Wrap(err, "failed to decode issue",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
		)
	}

	return &issue, nil
}

func (r *syncRepository) SaveIssue(ctx context.Context, repoID types.GitHubRepoID, issue *model.Issue) error {
	docRef := r.repoDoc(repoID).Collection(collectionIssue).Doc(int64DocID(int64(issue.Number)))
	if _, err := docRef.Set(ctx, issue); err != nil {
		return goerr.Wrap(err, "failed to save issue",
			goerr.V("repoID", repoID),
			goerr.V("number", issue.Number),
		)
	}
	return nil
}

func (r *syncRepository) ListIssues(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Issue, error) {
	iter := r.repoDoc(repoID).Collection(collectionIssue).Documents(ctx)
	defer iter.Stop()

	var issues []*model.Issue
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate issues",
				goerr.V("repoID", repoID),
			)
		}

		var issue model.Issue
		if err := snap.DataTo(&issue); err != nil {
			return nil, goerr.Wrap(err, "failed to decode issue")
		}

		issues = append(issues, &issue)
	}

	return issues, nil
}

// Commits

func (r *syncRepository) SaveCommit(ctx context.Context, repoID types.GitHubRepoID, commit *model.Commit) error {
	docRef := r.repoDoc(repoID).Collection(collectionCommit).Doc(string(commit.SHA))
	if _, err := docRef.Set(ctx, commit); err != nil {
		return goerr.Wrap(err, "failed to save commit",
			goerr.V("repoID", repoID),
			goerr.V("sha", commit.SHA),
		)
	}
	return nil
}

func (r *syncRepository) ListCommits(ctx context.Context, repoID types.GitHubRepoID) ([]*model.Commit, error) {
	iter := r.repoDoc(repoID).Collection(collectionCommit).Documents(ctx)
	defer iter.Stop()

	var commits []*model.Commit
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate commits",
				goerr.V("repoID", repoID),
			)
		}

		var commit model.Commit
		if err := snap.DataTo(&commit); err != nil {
			return nil, goerr.Wrap(err, "failed to decode commit")
		}

		commits = append(commits, &commit)
	}

	return commits, nil
}

// Check runs

func (r *syncRepository) GetCheckRun(ctx context.Context, repoID types.GitHubRepoID, checkRunID int64) (*model.CheckRun, error) {
	docRef := r.repoDoc(repoID).Collection(collectionCheckRun).Doc(int64DocID(checkRunID))
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "check run not found",
				goerr.V("repoID", repoID),
				goerr.V("checkRunID", checkRunID),
			)
		}
		return nil, goerr.Wrap(err, "failed to get check run",
			goerr.V("repoID", repoID),
			goerr.V("checkRunID", checkRunID),
		)
	}

	var run model.CheckRun
	if err := snap.DataTo(&run); err != nil {
		return nil, goerr.Wrap(err, "failed to decode check run",
			goerr.V("repoID", repoID),
			goerr.V("checkRunID", checkRunID),
		)
	}

	return &run, nil
}

func (r *syncRepository) SaveCheckRun(ctx context.Context, repoID types.GitHubRepoID, run *model.CheckRun) error {
	docRef := r.repoDoc(repoID).Collection(collectionCheckRun).Doc(int64DocID(run.ID))
	if _, err := docRef.Set(ctx, run); err != nil {
		return goerr.Wrap(err, "failed to save check run",
			goerr.V("repoID", repoID),
			goerr.V("checkRunID", run.ID),
		)
	}
	return nil
}

func (r *syncRepository) ListCheckRuns(ctx context.Context, repoID types.GitHubRepoID) ([]*model.CheckRun, error) {
	iter := r.repoDoc(repoID).Collection(collectionCheckRun).Documents(ctx)
	defer iter.Stop()

	var runs []*model.CheckRun
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate check runs",
				goerr.V("repoID", repoID),
			)
		}

		var run model.CheckRun
		if err := snap.DataTo(&run); err != nil {
			return nil, goerr.Wrap(err, "failed to decode check run")
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

// Workflow runs and jobs

func (r *syncRepository) GetWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, runID int64) (*model.WorkflowRun, error) {
	docRef := r.repoDoc(repoID).Collection(collectionWorkflowRun).Doc(int64DocID(runID))
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "workflow run not found",
				goerr.V("repoID", repoID),
				goerr.V("runID", runID),
			)
		}
		return nil, goerr.Wrap(err, "failed to get workflow run",
			goerr.V("repoID", repoID),
			goerr.V("runID", runID),
		)
	}

	var run model.WorkflowRun
	if err := snap.DataTo(&run); err != nil {
		return nil, goerr.Wrap(err, "failed to decode workflow run",
			goerr.V("repoID", repoID),
			goerr.V("runID", runID),
		)
	}

	return &run, nil
}

func (r *syncRepository) SaveWorkflowRun(ctx context.Context, repoID types.GitHubRepoID, run *model.WorkflowRun) error {
	docRef := r.repoDoc(repoID).Collection(collectionWorkflowRun).Doc(int64DocID(run.ID))
	if _, err := docRef.Set(ctx, run); err != nil {
		return goerr.Wrap(err, "failed to save workflow run",
			goerr.V("repoID", repoID),
			goerr.V("runID", run.ID),
		)
	}
	return nil
}

func (r *syncRepository) ListWorkflowRuns(ctx context.Context, repoID types.GitHubRepoID) ([]*model.WorkflowRun, error) {
	iter := r.repoDoc(repoID).Collection(collectionWorkflowRun).Documents(ctx)
	defer iter.Stop()

	var runs []*model.WorkflowRun
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate workflow runs",
				goerr.V("repoID", repoID),
			)
		}

		var run model.WorkflowRun
		if err := snap.DataTo(&run); err != nil {
			return nil, goerr.Wrap(err, "failed to decode workflow run")
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

func (r *syncRepository) GetWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, jobID int64) (*model.WorkflowJob, error) {
	docRef := r.repoDoc(repoID).Collection(collectionWorkflowJob).Doc(int64DocID(jobID))
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "workflow job not found",
				goerr.V("repoID", repoID),
				goerr.V("jobID", jobID),
			)
		}
		return nil, goerr.Wrap(err, "failed to get workflow job",
			goerr.V("repoID", repoID),
			goerr.V("jobID", jobID),
		)
	}

	var job model.WorkflowJob
	if err := snap.DataTo(&job); err != nil {
		return nil, goerr.Wrap(err, "failed to decode workflow job",
			goerr.V("repoID", repoID),
			goerr.V("jobID", jobID),
		)
	}

	return &job, nil
}

func (r *syncRepository) SaveWorkflowJob(ctx context.Context, repoID types.GitHubRepoID, job *model.WorkflowJob) error {
	docRef := r.repoDoc(repoID).Collection(collectionWorkflowJob).Doc(int64DocID(job.ID))
	if _, err := docRef.Set(ctx, job); err != nil {
		return goerr.Wrap(err, "failed to save workflow job",
			goerr.V("repoID", repoID),
			goerr.V("jobID", job.ID),
		)
	}
	return nil
}

// Pull request files

func (r *syncRepository) SavePullRequestFiles(ctx context.Context, repoID types.GitHubRepoID, number int, headSHA types.CommitSHA, files []*model.PullRequestFile) error {
	docRef := r.repoDoc(repoID).Collection(collectionPRFiles).Doc(prFilesDocID(number, headSHA))
	doc := &prFilesDoc{
		Number:  number,
		HeadSHA: headSHA,
		Files:   files,
	}
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to save pull request files",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
			goerr.V("headSHA", headSHA),
		)
	}
	return nil
}

func (r *syncRepository) GetPullRequestFiles(ctx context.Context, repoID types.GitHubRepoID, number int, headSHA types.CommitSHA) ([]*model.PullRequestFile, error) {
	docRef := r.repoDoc(repoID).Collection(collectionPRFiles).Doc(prFilesDocID(number, headSHA))
	snap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get pull request files",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
			goerr.V("headSHA", headSHA),
		)
	}

	var doc prFilesDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode pull request files",
			goerr.V("repoID", repoID),
			goerr.V("number", number),
		)
	}

	return doc.Files, nil
}

// Users

func (r *syncRepository) SaveUser(ctx context.Context, user *model.User) error {
	docRef := r.client.Collection(collectionUser).Doc(int64DocID(int64(user.ID)))
	if _, err := docRef.Set(ctx, user); err != nil {
		return goerr.Wrap(err, "failed to save user",
			goerr.V("userID", user.ID),
		)
	}
	return nil
}

func (r *syncRepository) GetUser(ctx context.Context, userID types.GitHubUserID) (*model.User, error) {
	snap, err := r.client.Collection(collectionUser).Doc(int64DocID(int64(userID))).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(repository.ErrNotFound, "user not found",
				goerr.V("userID", userID),
			)
		}
		return nil, goerr.Wrap(err, "failed to get user",
			goerr.V("userID", userID),
		)
	}

	var user model.User
	if err := snap.DataTo(&user); err != nil {
		return nil, goerr.Wrap(err, "failed to decode user",
			goerr.V("userID", userID),
		)
	}

	return &user, nil
}

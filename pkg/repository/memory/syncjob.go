package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hubsync/pkg/domain/model"
	"github.com/m-mizutani/hubsync/pkg/domain/types"
	"github.com/m-mizutani/hubsync/pkg/repository"
)

func (r *syncRepository) CreateSyncJob(ctx context.Context, job *model.SyncJob) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Advisory lock: creation is skipped, never blocked, while another
	// non-terminal job holds the key.
	for _, existing := range r.jobs {
		if existing.LockKey == job.LockKey && !existing.State.IsTerminal() {
			return false, nil
		}
	}

	r.jobs[job.ID] = cloneJob(job)
	return true, nil
}

func (r *syncRepository) GetSyncJob(ctx context.Context, id types.SyncJobID) (*model.SyncJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "sync job not found",
			goerr.V("jobID", id),
		)
	}

	return cloneJob(job), nil
}

func (r *syncRepository) UpdateSyncJob(ctx context.Context, job *model.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "sync job not found",
			goerr.V("jobID", job.ID),
		)
	}

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *syncRepository) ListSyncJobsByState(ctx context.Context, state model.SyncJobState, limit int) ([]*model.SyncJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []*model.SyncJob
	for _, job := range r.jobs {
		if job.State != state {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}

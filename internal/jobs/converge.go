package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"

	logx "standupbot/pkg/logx"
)

type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Equivalent compares only schedule, time zone and retry config. Target URI,
// body and auth are not compared.
func Equivalent(a, b *Job) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Schedule == b.Schedule &&
		a.TimeZone == b.TimeZone &&
		cmp.Equal(retryOf(a), retryOf(b))
}

func retryOf(j *Job) RetryConfig {
	if j.RetryConfig == nil {
		return RetryConfig{}
	}
	return *j.RetryConfig
}

// CreateOrReplace makes the registry hold job. It creates the job when absent,
// does nothing when the stored job is Equivalent (after filling defaultTZ into
// an empty time zone), and issues one full Update otherwise.
//
// A Create that loses a race to another writer is not fatal: the job is
// re-read and converged through the update path.
func CreateOrReplace(ctx context.Context, reg Registry, job Job, defaultTZ string, log logx.Logger) (Outcome, error) {
	id := ID(job.Name)
	existing, err := reg.Get(ctx, job.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		err = reg.Create(ctx, job)
		if err == nil {
			log.Debug("created scheduler job", logx.String("job", id))
			return Created, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return Unchanged, fmt.Errorf("failed to create scheduler job %s: %w", job.Name, err)
		}
		log.Debug("scheduler job created concurrently; converging", logx.String("job", id))
		existing, err = reg.Get(ctx, job.Name)
		if err != nil {
			return Unchanged, fmt.Errorf("failed to get scheduler job %s: %w", job.Name, err)
		}
	case err != nil:
		return Unchanged, fmt.Errorf("failed to get scheduler job %s: %w", job.Name, err)
	}

	if job.TimeZone == "" {
		job.TimeZone = defaultTZ
	}
	if Equivalent(existing, &job) {
		log.Debug("scheduler job is up to date", logx.String("job", id))
		return Unchanged, nil
	}
	if err := reg.Update(ctx, job); err != nil {
		return Unchanged, fmt.Errorf("failed to update scheduler job %s: %w", job.Name, err)
	}
	log.Debug("updated scheduler job", logx.String("job", id),
		logx.String("schedule", job.Schedule), logx.String("tz", job.TimeZone))
	return Updated, nil
}

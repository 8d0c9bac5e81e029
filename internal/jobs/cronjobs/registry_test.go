package cronjobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"standupbot/internal/jobs"
	logx "standupbot/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestToCron(t *testing.T) {
	tests := []struct {
		schedule string
		tz       string
		want     string
		wantErr  bool
	}{
		{schedule: "every mon,tue,wed,thu,fri 10:00", tz: "America/Los_Angeles", want: "CRON_TZ=America/Los_Angeles 0 10 * * mon,tue,wed,thu,fri"},
		{schedule: "every monday,wed 9:30", tz: "", want: "30 9 * * mon,wed"},
		{schedule: "every day 07:05", tz: "UTC", want: "CRON_TZ=UTC 5 7 * * *"},
		{schedule: "every mon 24:00", wantErr: true},
		{schedule: "every mon 9:60", wantErr: true},
		{schedule: "every funday 9:00", wantErr: true},
		{schedule: "*/5 * * * *", wantErr: true},
		{schedule: "every mon 9:00", tz: "Not/AZone", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			got, err := ToCron(tt.schedule, tt.tz)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newJob(room, schedule string) jobs.Job {
	return jobs.Job{
		Name:       jobs.Name("local", "us-central1", "", room),
		Schedule:   schedule,
		HTTPTarget: &jobs.HTTPTarget{HTTPMethod: "POST", Body: jobs.TriggerBody(room)},
	}
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	var fired []string
	r := New(func(_ context.Context, room string) error {
		fired = append(fired, room)
		return nil
	}, "America/Los_Angeles", logx.Nop())
	r.Start(ctx)
	defer r.Stop(ctx)

	job := newJob("S1", "every mon 9:30")
	_, err := r.Get(ctx, job.Name)
	require.ErrorIs(t, err, jobs.ErrNotFound)

	require.NoError(t, r.Create(ctx, job))
	require.ErrorIs(t, r.Create(ctx, job), jobs.ErrAlreadyExists)

	got, err := r.Get(ctx, job.Name)
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", got.TimeZone)

	bad := job
	bad.Schedule = "every blursday 9:30"
	require.Error(t, r.Update(ctx, bad))
	got, err = r.Get(ctx, job.Name)
	require.NoError(t, err)
	assert.Equal(t, "every mon 9:30", got.Schedule)

	job.Schedule = "every tue 9:30"
	require.NoError(t, r.Update(ctx, job))
	require.Len(t, r.c.Entries(), 1)

	r.c.Entries()[0].Job.Run()
	assert.Equal(t, []string{"S1"}, fired)

	require.NoError(t, r.Delete(ctx, job.Name))
	require.ErrorIs(t, r.Delete(ctx, job.Name), jobs.ErrNotFound)
	require.ErrorIs(t, r.Update(ctx, job), jobs.ErrNotFound)
	assert.Empty(t, r.c.Entries())
}

func TestRegistryConvergesWithoutChurn(t *testing.T) {
	ctx := context.Background()
	r := New(func(context.Context, string) error { return nil }, "America/Los_Angeles", logx.Nop())
	job := newJob("S2", "every mon,tue 10:00")

	out, err := jobs.CreateOrReplace(ctx, r, job, "America/Los_Angeles", logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, jobs.Created, out)

	out, err = jobs.CreateOrReplace(ctx, r, job, "America/Los_Angeles", logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, jobs.Unchanged, out)
}

func TestFireDeadline(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name         string
		opts         []Option
		wantDeadline bool
	}{
		{name: "default has none", opts: nil, wantDeadline: false},
		{name: "configured", opts: []Option{WithFireTimeout(time.Minute)}, wantDeadline: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasDeadline bool
			r := New(func(c context.Context, _ string) error {
				_, hasDeadline = c.Deadline()
				return nil
			}, "UTC", logx.Nop(), tt.opts...)
			require.NoError(t, r.Create(ctx, newJob("S1", "every day 9:30")))
			r.c.Entries()[0].Job.Run()
			assert.Equal(t, tt.wantDeadline, hasDeadline)
		})
	}
}

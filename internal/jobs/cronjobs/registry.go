// Package cronjobs is an in-process jobs.Registry running on robfig/cron.
//
// Jobs live only in memory; the caller re-derives them on boot (see
// reconcile.ReconcileAll). When a job fires, its trigger body is decoded and
// handed to the Fire callback instead of being POSTed anywhere.
package cronjobs

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // zone names must resolve on hosts without zoneinfo

	"github.com/robfig/cron/v3"

	"standupbot/internal/jobs"
	logx "standupbot/pkg/logx"
)

// Fire runs a standup for roomID.
type Fire func(ctx context.Context, roomID string) error

type entry struct {
	job jobs.Job
	id  cron.EntryID
}

type Registry struct {
	mu      sync.Mutex
	c       *cron.Cron
	parser  cron.Parser
	entries map[string]entry
	started bool

	fire    Fire
	timeout time.Duration
	defTZ   string
	log     logx.Logger
}

var _ jobs.Registry = (*Registry)(nil)

type Option func(*Registry)

// WithFireTimeout bounds each firing. Zero, the default, means no deadline.
func WithFireTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

func New(fire Fire, defaultTZ string, log logx.Logger, opts ...Option) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	r := &Registry{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger{log})),
			cron.WithLogger(cronLogger{log}),
		),
		parser:  parser,
		entries: map[string]entry{},
		fire:    fire,
		defTZ:   defaultTZ,
		log:     log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.c.Start()
	r.started = true
	r.log.Info("cron registry started", logx.Int("jobs", len(r.entries)))
}

// Stop halts triggering and waits for running jobs until ctx is done.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	select {
	case <-r.c.Stop().Done():
	case <-ctx.Done():
	}
	r.log.Info("cron registry stopped")
}

func (r *Registry) Get(_ context.Context, name string) (*jobs.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, jobs.ErrNotFound)
	}
	j := e.job
	return &j, nil
}

func (r *Registry) Create(_ context.Context, job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[job.Name]; ok {
		return fmt.Errorf("create %s: %w", job.Name, jobs.ErrAlreadyExists)
	}
	return r.addLocked(job)
}

func (r *Registry) Update(_ context.Context, job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.entries[job.Name]
	if !ok {
		return fmt.Errorf("update %s: %w", job.Name, jobs.ErrNotFound)
	}
	// Validate first so a bad update leaves the old entry running.
	if _, err := r.specFor(job); err != nil {
		return err
	}
	r.c.Remove(old.id)
	delete(r.entries, job.Name)
	return r.addLocked(job)
}

func (r *Registry) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("delete %s: %w", name, jobs.ErrNotFound)
	}
	r.c.Remove(e.id)
	delete(r.entries, name)
	r.log.Debug("cron job removed", logx.String("job", jobs.ID(name)))
	return nil
}

func (r *Registry) addLocked(job jobs.Job) error {
	if job.TimeZone == "" {
		job.TimeZone = r.defTZ
	}
	spec, err := r.specFor(job)
	if err != nil {
		return err
	}
	id, err := r.c.AddFunc(spec, func() {
		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if r.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		defer cancel()
		if err := r.run(ctx, job); err != nil {
			r.log.Error("standup job failed", logx.String("job", jobs.ID(job.Name)), logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", job.Name, err)
	}
	r.entries[job.Name] = entry{job: job, id: id}

	fields := []logx.Field{logx.String("job", jobs.ID(job.Name)), logx.String("spec", spec)}
	if sched, err := r.parser.Parse(spec); err == nil {
		fields = append(fields, logx.Time("next", sched.Next(time.Now())))
	}
	r.log.Debug("cron job registered", fields...)
	return nil
}

func (r *Registry) specFor(job jobs.Job) (string, error) {
	tz := job.TimeZone
	if tz == "" {
		tz = r.defTZ
	}
	spec, err := ToCron(job.Schedule, tz)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", job.Name, err)
	}
	if _, err := r.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("job %s: %w", job.Name, err)
	}
	return spec, nil
}

func (r *Registry) run(ctx context.Context, job jobs.Job) error {
	if job.HTTPTarget == nil {
		return fmt.Errorf("job %s has no target", job.Name)
	}
	roomID, err := jobs.DecodeTriggerBody(job.HTTPTarget.Body)
	if err != nil {
		return err
	}
	return r.fire(ctx, roomID)
}

var (
	reTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

	dayAbbrev = map[string]string{
		"mon": "mon", "monday": "mon",
		"tue": "tue", "tuesday": "tue",
		"wed": "wed", "wednesday": "wed",
		"thu": "thu", "thursday": "thu",
		"fri": "fri", "friday": "fri",
		"sat": "sat", "saturday": "sat",
		"sun": "sun", "sunday": "sun",
	}
)

// ToCron translates "every <days> <H:MM>" into a five-field cron spec pinned
// to tz, e.g. "every monday,wed 9:30" -> "CRON_TZ=<tz> 30 9 * * mon,wed".
// "every day 9:30" runs daily.
func ToCron(schedule, tz string) (string, error) {
	fields := strings.Fields(strings.ToLower(schedule))
	if len(fields) != 3 || fields[0] != "every" {
		return "", fmt.Errorf("unsupported schedule %q (want \"every <days> <HH:MM>\")", schedule)
	}
	m := reTime.FindStringSubmatch(fields[2])
	if m == nil {
		return "", fmt.Errorf("invalid time %q", fields[2])
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh >= 24 || mm >= 60 {
		return "", fmt.Errorf("invalid time %q", fields[2])
	}

	dow := "*"
	if fields[1] != "day" {
		var days []string
		for _, d := range strings.Split(fields[1], ",") {
			if d == "" {
				continue
			}
			abbr, ok := dayAbbrev[d]
			if !ok {
				return "", fmt.Errorf("invalid day %q", d)
			}
			days = append(days, abbr)
		}
		if len(days) == 0 {
			return "", fmt.Errorf("no days in %q", schedule)
		}
		dow = strings.Join(days, ",")
	}

	spec := fmt.Sprintf("%d %d * * %s", mm, hh, dow)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return "", fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return spec, nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

// Package reconcile derives a room's recurring job from its stored settings
// and converges the job registry onto it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"standupbot/internal/gcp"
	"standupbot/internal/jobs"
	"standupbot/internal/model"
	"standupbot/internal/store"
	logx "standupbot/pkg/logx"
)

type Defaults struct {
	Time     string
	Days     string
	TimeZone string
}

type Config struct {
	Project   string
	Location  string
	JobPrefix string
	// TriggerURL receives POST {"spaceId": ...} when a job fires.
	TriggerURL string
	Audience   string
	Defaults   Defaults
}

// Reconciler is immutable after New and safe for concurrent use. Concurrent
// reconciliations of one room may race; convergence makes that benign.
type Reconciler struct {
	cfg   Config
	store store.Store
	reg   jobs.Registry
	ident gcp.Identity
	log   logx.Logger
}

// New returns a Reconciler. ident may be nil, in which case jobs carry no
// OIDC token.
func New(cfg Config, st store.Store, reg jobs.Registry, ident gcp.Identity, log logx.Logger) *Reconciler {
	if cfg.Audience == "" {
		cfg.Audience = cfg.TriggerURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{cfg: cfg, store: st, reg: reg, ident: ident, log: log}
}

func (r *Reconciler) JobName(roomID string) string {
	return jobs.Name(r.cfg.Project, r.cfg.Location, r.cfg.JobPrefix, roomID)
}

// Desired builds the job a room should have, filling unset fields from the
// defaults.
func (r *Reconciler) Desired(ctx context.Context, roomID string) (jobs.Job, error) {
	var room model.Room
	if _, err := store.GetInto(ctx, r.store, model.RoomPath(roomID), &room); err != nil {
		return jobs.Job{}, fmt.Errorf("load room %s: %w", roomID, err)
	}
	at := orDefault(room.Schedule, r.cfg.Defaults.Time)
	days := orDefault(room.Days, r.cfg.Defaults.Days)
	tz := orDefault(room.TimeZone, r.cfg.Defaults.TimeZone)

	target := &jobs.HTTPTarget{
		URI:        r.cfg.TriggerURL,
		HTTPMethod: "POST",
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       jobs.TriggerBody(roomID),
	}
	if r.ident != nil {
		email, err := r.ident.Email(ctx)
		if err != nil {
			return jobs.Job{}, err
		}
		target.OIDCToken = &jobs.OIDCToken{ServiceAccountEmail: email, Audience: r.cfg.Audience}
	}
	return jobs.Job{
		Name:       r.JobName(roomID),
		Schedule:   fmt.Sprintf("every %s %s", days, at),
		TimeZone:   tz,
		HTTPTarget: target,
	}, nil
}

func (r *Reconciler) Reconcile(ctx context.Context, roomID string) error {
	job, err := r.Desired(ctx, roomID)
	if err != nil {
		return err
	}
	out, err := jobs.CreateOrReplace(ctx, r.reg, job, r.cfg.Defaults.TimeZone, r.log)
	if err != nil {
		return err
	}
	r.log.Info("room reconciled",
		logx.String("space", roomID),
		logx.String("outcome", out.String()),
		logx.String("schedule", job.Schedule),
		logx.String("tz", job.TimeZone),
	)
	return nil
}

// Unschedule deletes the room's job. A missing job is reported as
// jobs.ErrNotFound.
func (r *Reconciler) Unschedule(ctx context.Context, roomID string) error {
	name := r.JobName(roomID)
	if err := r.reg.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete scheduler job %s: %w", name, err)
	}
	r.log.Info("room unscheduled", logx.String("space", roomID))
	return nil
}

// ReconcileAll reconciles every room that has a schedule, in room id order,
// and returns how many it reconciled. It keeps going past failures.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	v, err := r.store.Get(ctx, model.RoomsPath)
	if err != nil {
		return 0, err
	}
	rooms, _ := v.(map[string]any)
	ids := make([]string, 0, len(rooms))
	for id, raw := range rooms {
		fields, _ := raw.(map[string]any)
		if s, _ := fields[model.FieldSchedule].(string); s != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var errs []error
	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Reconcile(ctx, id); err != nil {
			r.log.Warn("reconcile failed", logx.String("space", id), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Package cloudscheduler is a jobs.Registry backed by the Google Cloud
// Scheduler REST API.
package cloudscheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"standupbot/internal/gcp"
	"standupbot/internal/jobs"
	logx "standupbot/pkg/logx"
)

const DefaultEndpoint = "https://cloudscheduler.googleapis.com/v1/"

type Config struct {
	Endpoint string
	// DefaultTimeZone is sent when a job carries none.
	DefaultTimeZone string
	// Timeout bounds each API call. Zero means none.
	Timeout time.Duration
}

type Client struct {
	endpoint string
	defTZ    string
	tokens   gcp.TokenSource
	http     *http.Client
	log      logx.Logger
}

var _ jobs.Registry = (*Client)(nil)

func New(cfg Config, tokens gcp.TokenSource, log logx.Logger) *Client {
	ep := strings.TrimSpace(cfg.Endpoint)
	if ep == "" {
		ep = DefaultEndpoint
	}
	if !strings.HasSuffix(ep, "/") {
		ep += "/"
	}
	return &Client{
		endpoint: ep,
		defTZ:    cfg.DefaultTimeZone,
		tokens:   tokens,
		http:     &http.Client{Timeout: cfg.Timeout},
		log:      log,
	}
}

// APIError is a non-2xx response. It unwraps to jobs.ErrNotFound for 404
// and jobs.ErrAlreadyExists for 409.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return jobs.ErrNotFound
	case http.StatusConflict:
		return jobs.ErrAlreadyExists
	}
	return nil
}

func (c *Client) Get(ctx context.Context, name string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.do(ctx, "GetJob", http.MethodGet, name, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Create(ctx context.Context, job jobs.Job) error {
	return c.do(ctx, "CreateJob", http.MethodPost, jobs.Parent(job.Name), c.withDefaults(job), nil)
}

func (c *Client) Update(ctx context.Context, job jobs.Job) error {
	return c.do(ctx, "UpdateJob", http.MethodPatch, job.Name, c.withDefaults(job), nil)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, "DeleteJob", http.MethodDelete, name, nil, nil)
}

func (c *Client) withDefaults(job jobs.Job) jobs.Job {
	if job.TimeZone == "" {
		job.TimeZone = c.defTZ
	}
	return job
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	c.log.Debug("cloud scheduler call",
		logx.String("op", op),
		logx.String("job", jobs.ID(path)),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}
	}
	return nil
}

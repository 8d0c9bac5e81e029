// Package jobs models the external recurring-job registry and converges a
// registry entry onto a desired job.
package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
)

type OIDCToken struct {
	ServiceAccountEmail string `json:"serviceAccountEmail"`
	Audience            string `json:"audience,omitempty"`
}

type HTTPTarget struct {
	URI        string            `json:"uri"`
	HTTPMethod string            `json:"httpMethod"`
	Headers    map[string]string `json:"headers,omitempty"`
	// Body is base64-encoded.
	Body      string     `json:"body,omitempty"`
	OIDCToken *OIDCToken `json:"oidcToken,omitempty"`
}

type RetryConfig struct {
	RetryCount         int    `json:"retryCount,omitempty"`
	MaxRetryDuration   string `json:"maxRetryDuration,omitempty"`
	MinBackoffDuration string `json:"minBackoffDuration,omitempty"`
	MaxBackoffDuration string `json:"maxBackoffDuration,omitempty"`
	MaxDoublings       int    `json:"maxDoublings,omitempty"`
}

// Job is a recurring job as the registry stores it.
type Job struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Schedule    string       `json:"schedule"`
	TimeZone    string       `json:"timeZone,omitempty"`
	HTTPTarget  *HTTPTarget  `json:"httpTarget,omitempty"`
	RetryConfig *RetryConfig `json:"retryConfig,omitempty"`
}

// Registry stores recurring jobs by name.
//
// Get returns ErrNotFound when the job is absent. Create fails with
// ErrAlreadyExists on a name clash; Update and Delete fail with ErrNotFound
// when the job is absent. Implementations wrap the sentinels.
type Registry interface {
	Get(ctx context.Context, name string) (*Job, error)
	Create(ctx context.Context, job Job) error
	Update(ctx context.Context, job Job) error
	Delete(ctx context.Context, name string) error
}

// Name derives the stable job name of a room.
func Name(project, location, prefix, roomID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/jobs/%s%s", project, location, prefix, roomID)
}

// ID returns the trailing id of a job name.
func ID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Parent returns the collection a job name belongs to ("projects/p/locations/l/jobs").
func Parent(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i]
	}
	return ""
}

type triggerPayload struct {
	SpaceID string `json:"spaceId"`
}

// TriggerBody encodes the trigger payload for roomID as a job body.
func TriggerBody(roomID string) string {
	b, _ := json.Marshal(triggerPayload{SpaceID: roomID})
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeTriggerBody is the inverse of TriggerBody.
func DecodeTriggerBody(body string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("decode trigger body: %w", err)
	}
	var p triggerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("decode trigger body: %w", err)
	}
	if p.SpaceID == "" {
		return "", errors.New("trigger body has no spaceId")
	}
	return p.SpaceID, nil
}

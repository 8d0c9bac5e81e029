// Package gcp fetches outbound credentials from the GCE / Cloud Run
// metadata server.
package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultMetadataHost = "metadata.google.internal"

	tokenPath = "/computeMetadata/v1/instance/service-accounts/default/token"
	emailPath = "/computeMetadata/v1/instance/service-accounts/default/email"
)

// Scopes requested for the default service account token.
var Scopes = []string{
	"https://www.googleapis.com/auth/chat.bot",
	"https://www.googleapis.com/auth/cloud-platform",
}

// TokenSource yields an OAuth access token. Implementations do not cache.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Identity yields the service account email the process runs as.
type Identity interface {
	Email(ctx context.Context) (string, error)
}

// Metadata queries the metadata server on every call.
type Metadata struct {
	base   string
	client *http.Client
}

// NewMetadata returns a client for host (default metadata.google.internal).
// host may carry a scheme, which tests use to point at httptest servers.
// A zero timeout means none.
func NewMetadata(host string, timeout time.Duration) *Metadata {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultMetadataHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return &Metadata{
		base:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (m *Metadata) Token(ctx context.Context) (string, error) {
	body, err := m.get(ctx, tokenPath+"?scopes="+strings.Join(Scopes, ","))
	if err != nil {
		return "", fmt.Errorf("metadata token: %w", err)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("metadata token: decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("metadata token: empty access_token")
	}
	return tok.AccessToken, nil
}

func (m *Metadata) Email(ctx context.Context) (string, error) {
	body, err := m.get(ctx, emailPath)
	if err != nil {
		return "", fmt.Errorf("metadata email: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

func (m *Metadata) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Static returns fixed credentials; empty fields fall back to Fallback.
type Static struct {
	AccessToken         string
	ServiceAccountEmail string
	Fallback            interface {
		TokenSource
		Identity
	}
}

func (s Static) Token(ctx context.Context) (string, error) {
	if s.AccessToken != "" {
		return s.AccessToken, nil
	}
	if s.Fallback == nil {
		return "", errors.New("no access token configured")
	}
	return s.Fallback.Token(ctx)
}

func (s Static) Email(ctx context.Context) (string, error) {
	if s.ServiceAccountEmail != "" {
		return s.ServiceAccountEmail, nil
	}
	if s.Fallback == nil {
		return "", errors.New("no service account email configured")
	}
	return s.Fallback.Email(ctx)
}

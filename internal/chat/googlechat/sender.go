// Package googlechat posts messages through the Google Chat REST API.
package googlechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"standupbot/internal/chat"
	"standupbot/internal/gcp"
	logx "standupbot/pkg/logx"
)

const DefaultEndpoint = "https://chat.googleapis.com"

type Config struct {
	Endpoint   string
	RatePerSec int
	// Timeout bounds each send. Zero means none.
	Timeout time.Duration
}

// Sender implements chat.Sender. The response status and body are logged,
// never acted upon; only transport failures are returned.
type Sender struct {
	endpoint string
	tokens   gcp.TokenSource
	client   *http.Client
	limiter  *rate.Limiter
	log      logx.Logger
}

var _ chat.Sender = (*Sender)(nil)

func New(cfg Config, tokens gcp.TokenSource, log logx.Logger) *Sender {
	ep := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if ep == "" {
		ep = DefaultEndpoint
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Sender{
		endpoint: ep,
		tokens:   tokens,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		log:      log,
	}
}

func (s *Sender) Send(ctx context.Context, roomID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(chat.Reply{Text: text})
	if err != nil {
		return err
	}
	u := s.endpoint + "/v1/spaces/" + url.PathEscape(roomID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", roomID, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))

	lvl := s.log.Debug
	if resp.StatusCode >= 300 {
		lvl = s.log.Warn
	}
	lvl("chat send response",
		logx.String("room", roomID),
		logx.Int("status", resp.StatusCode),
		logx.String("body", strings.TrimSpace(string(body))),
	)
	return nil
}

func (s *Sender) Mention(userID, _ string) string {
	return "<users/" + userID + ">"
}

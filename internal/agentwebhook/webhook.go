// Package agentwebhook notifies the external log-review agent that a job
// finished. The agent's analysis logic is out of scope (spec §1); only
// the fire-and-forget webhook contract is specified (spec §4.10 step 8).
package agentwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

// Payload is the body posted to the agent on job completion.
type Payload struct {
	JobID    string `json:"job_id"`
	ExitCode int    `json:"exit_code"`
}

// Client posts completion notifications to the agent, tolerating any
// failure since the completion pipeline must never roll back on it.
type Client struct {
	log      *logger.Logger
	endpoint string
	http     *http.Client
}

func New(log *logger.Logger, endpoint string, timeout time.Duration) *Client {
	return &Client{
		log:      log.With("component", "agentwebhook"),
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Notify is fire-and-forget: a failure is logged and swallowed, never
// returned to the caller, matching spec §4.10's best-effort ordering.
func (c *Client) Notify(ctx context.Context, payload Payload) {
	if c.endpoint == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("failed to marshal webhook payload", "error", err, "job_id", payload.JobID)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.log.Warn("failed to build webhook request", "error", err, "job_id", payload.JobID)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("log-review webhook failed", "error", err, "job_id", payload.JobID)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log.Warn("log-review webhook returned an error status", "status", resp.StatusCode, "job_id", payload.JobID)
	}
}

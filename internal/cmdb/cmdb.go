// Package cmdb is the write-only interface to the external configuration
// management database the completion pipeline forwards host facts to.
// The CMDB itself — its storage, schema, and RAG indexing — is out of
// scope (spec §1); only the forwarding contract is specified.
package cmdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HostFacts is one host's fact map extracted from a completed job, as
// reported by the worker in complete_job's cmdb_facts payload.
type HostFacts map[string]interface{}

// Entry is one forwarded fact set with the metadata the completion
// pipeline attaches (spec §4.10 step 6).
type Entry struct {
	Host        string    `json:"host"`
	Facts       HostFacts `json:"facts"`
	JobID       string    `json:"job_id"`
	Playbook    string    `json:"playbook"`
	CollectedAt time.Time `json:"collected_at"`
}

// Forwarder sends extracted host facts to the external CMDB.
type Forwarder interface {
	Forward(ctx context.Context, entries []Entry) error
}

// HTTPForwarder posts entries to a configured CMDB ingestion endpoint.
// No pack example wires a dedicated CMDB SDK; the original source treats
// this as a generic HTTP sink, so plain net/http is the grounded choice.
type HTTPForwarder struct {
	endpoint string
	client   *http.Client
}

func NewHTTPForwarder(endpoint string, timeout time.Duration) *HTTPForwarder {
	return &HTTPForwarder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, entries []Entry) error {
	if f.endpoint == "" || len(entries) == 0 {
		return nil
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cmdb: marshal entries: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cmdb: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("cmdb: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cmdb: unexpected status %d", resp.StatusCode)
	}
	return nil
}

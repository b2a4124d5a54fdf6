package workerrt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ansiblecluster/core/internal/cmdb"
	"github.com/ansiblecluster/core/internal/model"
)

// APIClient talks to the primary's worker-facing HTTP API (spec §6's
// worker-primary table). Every call carries its own timeout, following the
// per-endpoint budgets in §5 (registration/check-in/manifest 30s, archive
// 120s, log stream short, completion moderate).
type APIClient struct {
	baseURL  string
	workerID string
	http     *http.Client
}

func NewAPIClient(baseURL string, insecureSkipVerify bool) *APIClient {
	transport := &http.Transport{}
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(transport)},
	}
}

// SetWorkerID records the id returned by Register so subsequent calls send
// the X-Worker-Id header.
func (c *APIClient) SetWorkerID(id string) {
	c.workerID = id
}

func (c *APIClient) do(ctx context.Context, method, path string, timeout time.Duration, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("workerrt: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("workerrt: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.workerID != "" {
		req.Header.Set("X-Worker-Id", c.workerID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("workerrt: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("workerrt: %s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HealthCheck probes the primary's /healthz endpoint; used during startup
// retry-with-backoff before registration (spec §4.8).
func (c *APIClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", 10*time.Second, nil, nil)
}

type registerRequest struct {
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
	Token string   `json:"token"`
}

type registerResponse struct {
	WorkerID        string `json:"worker_id"`
	CheckinInterval int    `json:"checkin_interval"`
}

func (c *APIClient) Register(ctx context.Context, name string, tags []string, token string) (string, int, error) {
	var resp registerResponse
	err := c.do(ctx, http.MethodPost, "/api/workers/register", 30*time.Second,
		registerRequest{Name: name, Tags: tags, Token: token}, &resp)
	if err != nil {
		return "", 0, err
	}
	return resp.WorkerID, resp.CheckinInterval, nil
}

type checkinRequest struct {
	SyncRevision *string            `json:"sync_revision,omitempty"`
	Stats        *model.WorkerStats `json:"stats,omitempty"`
	Status       *string            `json:"status,omitempty"`
	ActiveJobs   []string           `json:"active_jobs,omitempty"`
}

// CheckinResult mirrors registry.CheckinResult's wire shape.
type CheckinResult struct {
	NextCheckinSeconds int    `json:"next_checkin_seconds"`
	SyncNeeded         bool   `json:"sync_needed"`
	CurrentRevision    string `json:"current_revision"`
}

func (c *APIClient) Checkin(ctx context.Context, syncRevision string, stats model.WorkerStats, status model.WorkerStatus, activeJobs []string) (*CheckinResult, error) {
	statusStr := string(status)
	var rev *string
	if syncRevision != "" {
		rev = &syncRevision
	}
	var result CheckinResult
	err := c.do(ctx, http.MethodPost, "/api/workers/"+c.workerID+"/checkin", 30*time.Second,
		checkinRequest{SyncRevision: rev, Stats: &stats, Status: &statusStr, ActiveJobs: activeJobs}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) AssignedJobs(ctx context.Context) ([]*model.Job, error) {
	var resp struct {
		Jobs []*model.Job `json:"jobs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/workers/"+c.workerID+"/jobs?status=assigned", 30*time.Second, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

type startRequest struct {
	LogFile string `json:"log_file"`
}

func (c *APIClient) StartJob(ctx context.Context, jobID, logFile string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/start", 30*time.Second,
		startRequest{LogFile: logFile}, nil)
}

type logChunkRequest struct {
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// StreamLog posts one log chunk; callers must treat failures as non-fatal
// (spec §4.8.1 step 5 — log streaming is best-effort) and use a short
// per-call deadline so a slow primary never stalls the subprocess reader.
func (c *APIClient) StreamLog(ctx context.Context, jobID, content string, append bool) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/log/stream", 5*time.Second,
		logChunkRequest{Content: content, Append: append}, nil)
}

type completeRequest struct {
	ExitCode        int                       `json:"exit_code"`
	LogFile         string                    `json:"log_file"`
	LogContent      string                    `json:"log_content,omitempty"`
	ErrorMessage    string                    `json:"error_message,omitempty"`
	DurationSeconds float64                   `json:"duration_seconds"`
	CMDBFacts       map[string]cmdb.HostFacts `json:"cmdb_facts,omitempty"`
}

type completeResponse struct {
	Status string `json:"status"`
}

func (c *APIClient) CompleteJob(ctx context.Context, jobID string, exitCode int, logFile, logContent, errorMessage string, durationSeconds float64, cmdbFacts map[string]cmdb.HostFacts) (string, error) {
	var resp completeResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/complete", 60*time.Second,
		completeRequest{
			ExitCode:        exitCode,
			LogFile:         logFile,
			LogContent:      logContent,
			ErrorMessage:    errorMessage,
			DurationSeconds: durationSeconds,
			CMDBFacts:       cmdbFacts,
		}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

type revisionResponse struct {
	Revision      string `json:"revision"`
	ShortRevision string `json:"short_revision"`
}

func (c *APIClient) Revision(ctx context.Context) (string, error) {
	var resp revisionResponse
	if err := c.do(ctx, http.MethodGet, "/api/sync/revision", 30*time.Second, nil, &resp); err != nil {
		return "", err
	}
	return resp.Revision, nil
}

type manifestResponse struct {
	Revision string         `json:"revision"`
	Files    model.Manifest `json:"manifest"`
}

func (c *APIClient) Manifest(ctx context.Context) (model.Manifest, error) {
	var resp manifestResponse
	if err := c.do(ctx, http.MethodGet, "/api/sync/manifest", 30*time.Second, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Archive fetches the full bundle as a gzip'd tar stream; the caller owns
// closing the returned body.
func (c *APIClient) Archive(ctx context.Context) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sync/archive", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		defer cancel()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("workerrt: archive fetch: status %d: %s", resp.StatusCode, string(raw))
	}
	return &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// File fetches a single bundle-relative file; the caller owns closing it.
func (c *APIClient) File(ctx context.Context, relPath string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sync/file/"+relPath, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		defer cancel()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("workerrt: file fetch %s: status %d: %s", relPath, resp.StatusCode, string(raw))
	}
	return &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnCloseBody ties a context cancel func to the lifetime of a
// streamed response body, since the per-call timeout context would
// otherwise leak until the deadline regardless of when the caller finishes
// reading.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

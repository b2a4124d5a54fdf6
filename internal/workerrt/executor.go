package workerrt

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

const (
	logFlushLines = 10
	logFlushEvery = 2 * time.Second
)

// JobExecutor runs one playbook execution end to end (spec §4.8.1): it
// resolves the playbook path, spawns ansible-playbook, streams output in
// bounded chunks, and reports completion. One JobExecutor instance handles
// exactly one job; the Runtime spawns one goroutine per concurrent job.
type JobExecutor struct {
	log     *logger.Logger
	client  *APIClient
	logsDir string
}

func NewJobExecutor(log *logger.Logger, client *APIClient, logsDir string) *JobExecutor {
	return &JobExecutor{log: log.With("component", "workerrt.executor"), client: client, logsDir: logsDir}
}

// Run executes job and reports its outcome to the primary. It never returns
// an error that the caller needs to act on beyond logging: every failure
// mode is folded into the completion call's exit code/error message per
// spec §4.8.1 step 7.
func (e *JobExecutor) Run(ctx context.Context, job *model.Job, workerName, workerID string) {
	shortID := job.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	logFile := fmt.Sprintf("%s_%s_%s.log", job.Playbook, shortID, time.Now().UTC().Format("20060102T150405Z"))
	partialPath := filepath.Join(e.logsDir, "partial-"+job.ID+".log")

	partial, err := os.OpenFile(partialPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		e.reportFailure(ctx, job.ID, 1, logFile, fmt.Sprintf("opening partial log: %v", err), 0)
		return
	}
	defer partial.Close()

	if err := e.client.StartJob(ctx, job.ID, logFile); err != nil {
		e.log.Warn("start_job notification failed, continuing execution", "job_id", job.ID, "error", err)
	}

	playbookPath := resolvePlaybookPath(job.Playbook)
	args := buildAnsibleArgs(playbookPath, job.Target, job.ExtraVars)

	header := buildHeader(workerName, workerID, job, playbookPath, args)
	partial.WriteString(header)
	if err := e.client.StreamLog(ctx, job.ID, header, false); err != nil {
		e.log.Warn("header stream failed, continuing best-effort", "job_id", job.ID, "error", err)
	}

	start := time.Now()
	cmd := exec.Command("ansible-playbook", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.finish(ctx, job.ID, logFile, partial, start, 1, fmt.Sprintf("creating stdout pipe: %v", err))
		return
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		exitCode, msg := classifyStartError(err)
		e.finish(ctx, job.ID, logFile, partial, start, exitCode, msg)
		return
	}

	e.stream(ctx, job.ID, partial, stdout)

	waitErr := cmd.Wait()
	exitCode := 0
	errMsg := ""
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
			errMsg = waitErr.Error()
		}
	}

	footer := buildFooter(exitCode, time.Since(start))
	partial.WriteString(footer)
	if err := e.client.StreamLog(ctx, job.ID, footer, true); err != nil {
		e.log.Warn("footer stream failed", "job_id", job.ID, "error", err)
	}

	e.finish(ctx, job.ID, logFile, partial, start, exitCode, errMsg)
}

// stream reads subprocess output line by line, flushing to both the local
// partial file and the log-stream endpoint whenever the buffer reaches
// logFlushLines or logFlushEvery elapses, whichever comes first. Streaming
// failures are logged and discarded: they must never block job progress.
func (e *JobExecutor) stream(ctx context.Context, jobID string, partial io.Writer, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var buf strings.Builder
	lines := 0
	lastFlush := time.Now()

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunk := buf.String()
		partial.Write([]byte(chunk))
		if err := e.client.StreamLog(ctx, jobID, chunk, true); err != nil {
			e.log.Warn("log stream chunk failed, dropping", "job_id", jobID, "error", err)
		}
		buf.Reset()
		lines = 0
		lastFlush = time.Now()
	}

	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
		lines++
		if lines >= logFlushLines || time.Since(lastFlush) >= logFlushEvery {
			flush()
		}
	}
	flush()
}

func (e *JobExecutor) finish(ctx context.Context, jobID, logFile string, partial *os.File, start time.Time, exitCode int, errMsg string) {
	partial.Sync()
	content, err := os.ReadFile(partial.Name())
	if err != nil {
		e.log.Error("reading final local log failed", "job_id", jobID, "error", err)
		content = nil
	}
	duration := time.Since(start).Seconds()

	status, err := e.client.CompleteJob(ctx, jobID, exitCode, logFile, string(content), errMsg, duration, nil)
	if err != nil {
		e.log.Error("complete_job call failed", "job_id", jobID, "error", err)
		return
	}
	e.log.Info("job finished", "job_id", jobID, "exit_code", exitCode, "status", status)
}

func (e *JobExecutor) reportFailure(ctx context.Context, jobID string, exitCode int, logFile, errMsg string, duration float64) {
	if _, err := e.client.CompleteJob(ctx, jobID, exitCode, logFile, "", errMsg, duration, nil); err != nil {
		e.log.Error("complete_job call failed after local setup error", "job_id", jobID, "error", err)
	}
}

// resolvePlaybookPath tries the name as-given, then with .yml/.yaml
// appended; the as-given name is the last-resort fallback so the
// underlying runner raises a precise error (spec §4.8.1 step 1).
func resolvePlaybookPath(name string) string {
	candidates := []string{name, name + ".yml", name + ".yaml"}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return name
}

func buildAnsibleArgs(playbookPath, target string, extraVars model.ExtraVars) []string {
	args := []string{playbookPath, "-i", "inventory"}
	if target != "" {
		args = append(args, "-l", target)
	}
	if len(extraVars) > 0 {
		raw, err := json.Marshal(extraVars)
		if err == nil {
			args = append(args, "-e", string(raw))
		}
	}
	return args
}

func classifyStartError(err error) (int, string) {
	if errors.Is(err, os.ErrNotExist) {
		return 127, "ansible-playbook not found"
	}
	if errors.Is(err, os.ErrPermission) {
		return 126, err.Error()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return 127, "ansible-playbook not found"
	}
	return 1, err.Error()
}

func buildHeader(workerName, workerID string, job *model.Job, playbookPath string, args []string) string {
	shortID := workerID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Worker: %s (%s)\n", workerName, shortID)
	fmt.Fprintf(&b, "job_id: %s\n", job.ID)
	fmt.Fprintf(&b, "playbook: %s\n", job.Playbook)
	fmt.Fprintf(&b, "target: %s\n", job.Target)
	fmt.Fprintf(&b, "start_time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "command: ansible-playbook %s\n", strings.Join(args, " "))
	b.WriteString(strings.Repeat("-", 60) + "\n")
	return b.String()
}

func buildFooter(exitCode int, duration time.Duration) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "exit_code: %d\n", exitCode)
	fmt.Fprintf(&b, "duration: %s\n", duration.Round(time.Millisecond))
	return b.String()
}

package accessguard

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

type fakeWorkerStore struct {
	ids map[string]bool
}

func (f *fakeWorkerStore) WorkerExists(ctx context.Context, id string) bool {
	return f.ids[id]
}

func newTestGuard(t *testing.T, workers *fakeWorkerStore) *Guard {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewGuard(log, nil, nil, nil, workers, nil)
}

func TestRequireWorker_AcceptsWorkerIDFromBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(t, &fakeWorkerStore{ids: map[string]bool{"w1": true}})

	var bodySeenByHandler []byte
	router := gin.New()
	router.POST("/jobs/:id/start", guard.RequireWorker(), func(c *gin.Context) {
		bodySeenByHandler, _ = c.GetRawData()
		c.Status(http.StatusOK)
	})

	body := []byte(`{"worker_id":"w1","log_file":"job.log"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs/abc/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for worker auth via body, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(bodySeenByHandler, body) {
		t.Errorf("expected handler to still see the full request body, got %q", bodySeenByHandler)
	}
}

func TestRequireWorker_RejectsUnknownWorkerID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(t, &fakeWorkerStore{ids: map[string]bool{}})

	router := gin.New()
	router.POST("/jobs/:id/start", guard.RequireWorker(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	body := []byte(`{"worker_id":"unknown"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs/abc/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown worker id, got %d", rec.Code)
	}
}

func TestRequireWorker_HeaderTakesPrecedenceOverBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(t, &fakeWorkerStore{ids: map[string]bool{"header-worker": true}})

	var resolvedWorkerID string
	router := gin.New()
	router.POST("/jobs/:id/start", guard.RequireWorker(), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		resolvedWorkerID = p.WorkerID
		c.Status(http.StatusOK)
	})

	body := []byte(`{"worker_id":"body-worker"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs/abc/start", bytes.NewReader(body))
	req.Header.Set("X-Worker-Id", "header-worker")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resolvedWorkerID != "header-worker" {
		t.Errorf("expected header worker id to take precedence, got %q", resolvedWorkerID)
	}
}

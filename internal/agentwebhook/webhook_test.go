package agentwebhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ansiblecluster/core/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestClient_NotifyPostsPayload(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testLogger(t), srv.URL, time.Second)
	c.Notify(context.Background(), Payload{JobID: "j1", ExitCode: 0})

	if got.JobID != "j1" || got.ExitCode != 0 {
		t.Errorf("unexpected payload received: %+v", got)
	}
}

func TestClient_NotifyToleratesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testLogger(t), srv.URL, time.Second)
	// Must not panic even though the agent responds with an error.
	c.Notify(context.Background(), Payload{JobID: "j2", ExitCode: 1})
}

func TestClient_NotifyNoEndpointIsNoop(t *testing.T) {
	c := New(testLogger(t), "", time.Second)
	c.Notify(context.Background(), Payload{JobID: "j3"})
}

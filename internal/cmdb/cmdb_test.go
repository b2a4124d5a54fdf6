package cmdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPForwarder_PostsEntries(t *testing.T) {
	var received []Entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(srv.URL, time.Second)
	entries := []Entry{{Host: "host1", Facts: HostFacts{"os": "linux"}, JobID: "j1", Playbook: "site"}}
	if err := f.Forward(context.Background(), entries); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(received) != 1 || received[0].Host != "host1" {
		t.Errorf("unexpected received entries: %+v", received)
	}
}

func TestHTTPForwarder_NoEndpointIsNoop(t *testing.T) {
	f := NewHTTPForwarder("", time.Second)
	if err := f.Forward(context.Background(), []Entry{{Host: "h"}}); err != nil {
		t.Fatalf("expected no-op forward to succeed, got %v", err)
	}
}

func TestHTTPForwarder_ErrorStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(srv.URL, time.Second)
	if err := f.Forward(context.Background(), []Entry{{Host: "h"}}); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

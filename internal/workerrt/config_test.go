package workerrt

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	base := Config{
		WorkerName:        "worker-1",
		ServerURL:         "https://primary.example.com",
		RegistrationToken: "secret",
		CheckinInterval:   30 * time.Second,
		MaxConcurrentJobs: 2,
	}

	tests := []struct {
		name    string
		mutate  func(c Config) Config
		wantErr bool
	}{
		{"valid", func(c Config) Config { return c }, false},
		{"missing name", func(c Config) Config { c.WorkerName = ""; return c }, true},
		{"missing server url", func(c Config) Config { c.ServerURL = ""; return c }, true},
		{"missing token", func(c Config) Config { c.RegistrationToken = ""; return c }, true},
		{"checkin below minimum", func(c Config) Config { c.CheckinInterval = 5 * time.Second; return c }, true},
		{"zero max concurrent", func(c Config) Config { c.MaxConcurrentJobs = 0; return c }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(base).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_InsecureSkipVerify(t *testing.T) {
	if (Config{SSLVerify: "true"}).InsecureSkipVerify() {
		t.Error("SSLVerify=true should not skip verification")
	}
	if !(Config{SSLVerify: "false"}).InsecureSkipVerify() {
		t.Error("SSLVerify=false should skip verification")
	}
	if (Config{SSLVerify: "/path/to/ca.pem"}).InsecureSkipVerify() {
		t.Error("a CA bundle path should not skip verification")
	}
}

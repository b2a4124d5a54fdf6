package workerrt

import (
	"fmt"
	"time"

	"github.com/ansiblecluster/core/internal/pkg/envutil"
)

// Config loads the worker's environment (spec §6's environment config
// table, worker side), following the teacher's LoadConfig pattern.
type Config struct {
	WorkerName        string
	ServerURL         string
	RegistrationToken string
	Tags              []string
	CheckinInterval   time.Duration
	SyncInterval      time.Duration
	PollInterval      time.Duration
	PollCheckInterval time.Duration
	MaxConcurrentJobs int
	ContentDir        string
	LogsDir           string
	SSLVerify         string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		WorkerName:        envutil.String("WORKER_NAME", ""),
		ServerURL:         envutil.String("SERVER_URL", ""),
		RegistrationToken: envutil.String("REGISTRATION_TOKEN", ""),
		Tags:              envutil.StringSlice("WORKER_TAGS", ","),
		CheckinInterval:   envutil.Duration("CHECKIN_INTERVAL", 30*time.Second),
		SyncInterval:      envutil.Duration("SYNC_INTERVAL", 60*time.Second),
		PollInterval:      envutil.Duration("POLL_INTERVAL", 5*time.Second),
		PollCheckInterval: envutil.Duration("POLL_CHECK_INTERVAL", 60*time.Second),
		MaxConcurrentJobs: envutil.Int("MAX_CONCURRENT_JOBS", 1),
		ContentDir:        envutil.String("CONTENT_DIR", "./content"),
		LogsDir:           envutil.String("LOGS_DIR", "./logs"),
		SSLVerify:         envutil.String("SSL_VERIFY", "true"),
	}
	return cfg, cfg.Validate()
}

// Validate enforces spec §6's minimums; a worker that fails validation must
// exit non-zero before any loop or server interaction starts.
func (c Config) Validate() error {
	if c.WorkerName == "" {
		return fmt.Errorf("workerrt: WORKER_NAME is required")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("workerrt: SERVER_URL is required")
	}
	if c.RegistrationToken == "" {
		return fmt.Errorf("workerrt: REGISTRATION_TOKEN is required")
	}
	if c.CheckinInterval < 10*time.Second {
		return fmt.Errorf("workerrt: CHECKIN_INTERVAL must be >= 10s")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("workerrt: MAX_CONCURRENT_JOBS must be >= 1")
	}
	return nil
}

// InsecureSkipVerify reports whether SSL_VERIFY disables certificate
// verification outright ("false"); any other value (including a CA bundle
// path) leaves verification on in this implementation.
func (c Config) InsecureSkipVerify() bool {
	return c.SSLVerify == "false"
}

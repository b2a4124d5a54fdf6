package app

import (
	"time"

	"github.com/ansiblecluster/core/internal/pkg/envutil"
)

// Config loads the primary's environment (spec §6's environment config
// table, primary side), following the teacher's LoadConfig pattern.
type Config struct {
	ListenAddr        string
	LogMode           string
	PostgresDSN       string
	UseSQLiteMemory   bool
	ContentDir        string
	RegistrationToken string
	CheckinInterval   time.Duration
	RedisAddr         string
}

func LoadConfig() Config {
	return Config{
		ListenAddr:        envutil.String("LISTEN_ADDR", ":8080"),
		LogMode:           envutil.String("LOG_MODE", "production"),
		PostgresDSN:       envutil.String("POSTGRES_DSN", ""),
		UseSQLiteMemory:   envutil.Bool("USE_SQLITE_MEMORY", false),
		ContentDir:        envutil.String("CONTENT_DIR", "./content"),
		RegistrationToken: envutil.String("REGISTRATION_TOKEN", ""),
		CheckinInterval:   envutil.Duration("CHECKIN_INTERVAL", 30*time.Second),
		RedisAddr:         envutil.String("REDIS_ADDR", ""),
	}
}

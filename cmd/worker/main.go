package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ansiblecluster/core/internal/pkg/envutil"
	"github.com/ansiblecluster/core/internal/pkg/logger"
	"github.com/ansiblecluster/core/internal/pkg/shutdown"
	"github.com/ansiblecluster/core/internal/workerrt"
)

func main() {
	cfg, err := workerrt.LoadConfig()
	if err != nil {
		fmt.Printf("invalid worker configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(envutil.String("LOG_MODE", "production"))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	runtime := workerrt.New(cfg, log)
	if err := runtime.Run(ctx); err != nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

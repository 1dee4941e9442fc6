// Command agentd hosts the Session Runtime, Message Hub, Session Manager,
// and Recurring Job Scheduler as one process, the CLI surface being
// deliberately thin (the core is a library driven by a hosting binary).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flowlane/agentd/internal/common/config"
	"github.com/flowlane/agentd/internal/daemon"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build daemon: %w", err)
	}

	return d.Run(context.Background())
}

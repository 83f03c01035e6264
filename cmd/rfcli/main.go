// cmd/rfcli/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"focuser-service/internal/bootstrap"
	"focuser-service/internal/cli"
	"focuser-service/internal/config"
	"focuser-service/internal/utils"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", configPath, "Path of the configuration file.")
}

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Keep the terminal for the shell; only problems are logged
	if !cfg.App.Debug {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	svc, _ := bootstrap.NewFocuserService(cfg, nil, logger)
	defer svc.Close()

	return cli.New(svc, cfg.Focuser.DefaultSteps).
		WithAutoConnect(cfg.Focuser.AutoConnect).
		Run(args...)
}

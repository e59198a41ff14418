package main

import (
	"fmt"
	"log/slog"
	"os"

	"restql/internal/config"
	"restql/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("restql-server", pflag.ContinueOnError)
	showVersion := fs.Bool("version", false, "Print version and exit")
	config.DefineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("restql-server %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return serverapp.Run(cfg, Version)
}

// Package main implements the gametrics batch pipeline binary.
// It reads a raw JSONL telemetry file and publishes the cleaned event,
// daily metrics, and retention cohort tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gametrics/gametrics/internal/config"
	pipeerrors "github.com/gametrics/gametrics/internal/errors"
	"github.com/gametrics/gametrics/internal/pipeline"
)

var version = "dev"

type flags struct {
	input      string
	output     string
	configPath string
	strict     bool
	version    bool
}

func main() {
	f := parseFlags()

	if f.version {
		fmt.Printf("gametrics %s\n", version)
		return
	}

	if f.input == "" {
		fmt.Fprintln(os.Stderr, "error: --input is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	result, err := p.Run(ctx, f.input)
	if err != nil {
		logger.Printf("Pipeline failed [%s]: %v", pipeerrors.GetCategory(err), err)
		for _, issue := range pipeerrors.GetIssues(err) {
			logger.Printf("  issue: %s", issue)
		}
		os.Exit(1)
	}

	for _, path := range result.Output.Paths() {
		logger.Printf("Output: %s", path)
	}
}

func parseFlags() flags {
	f := flags{}

	flag.StringVar(&f.input, "input", "", "Path to raw JSONL event file (required)")
	flag.StringVar(&f.output, "output", "", "Output directory for published tables (default data/processed)")
	flag.StringVar(&f.configPath, "config", "", "Path to YAML or JSON config file")
	flag.BoolVar(&f.strict, "strict", false, "Treat quality issues as fatal")
	flag.BoolVar(&f.version, "version", false, "Print version and exit")

	flag.Parse()
	return f
}

// loadConfig layers configuration sources: defaults, then the config file,
// then environment variables, then flags.
func loadConfig(f flags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFromFile(f.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if f.output != "" {
		cfg.OutputDir = f.output
	}
	if f.strict {
		cfg.Quality.StrictMode = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/cosmic-journey/internal/simulate"
	"github.com/okian/cosmic-journey/pkg/logger"
)

const (
	defaultPlayers     = 50
	defaultSteps       = 20
	defaultDuplicates  = 0.1
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultPerPage     = 100
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
	defaultSecret      = "your_secret_key"
)

func main() {
	secret := os.Getenv("COSMIC_AUTH__JWT_SECRET")
	if secret == "" {
		secret = defaultSecret
	}
	var (
		baseURL        = flag.String("url", "http://localhost:3000", "Base URL of the service")
		jwtSecret      = flag.String("secret", secret, "JWT secret the server verifies tokens with")
		players        = flag.Int("players", defaultPlayers, "Number of simulated players")
		steps          = flag.Int("steps", defaultSteps, "Progress submissions per player")
		duplicates     = flag.Float64("duplicates", defaultDuplicates, "Share of submissions resent with the same request id")
		workers        = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Players driven concurrently")
		perPage        = flag.Int("per-page", defaultPerPage, "Leaderboard page size used for verification")
		legacyRollover = flag.Bool("legacy-rollover", false, "Server runs with the legacy 1% rollover")
		maxLevel       = flag.Int("max-level", 0, "Server's maximum level, 0 for unlimited")
		timeout        = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile     = flag.String("output", "", "Save generated player plans as JSON")
		logFormat      = flag.String("log-format", "text", "text or json")
		verbose        = flag.Bool("verbose", false, "Log every submission")
		help           = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := logger.Init(logger.WithFormat(logger.Format(*logFormat))); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:        *baseURL,
		JWTSecret:      *jwtSecret,
		Players:        *players,
		Steps:          *steps,
		DuplicateRatio: *duplicates,
		Workers:        *workers,
		Timeout:        *timeout,
		PerPage:        *perPage,
		LegacyRollover: *legacyRollover,
		MaxLevel:       *maxLevel,
		OutputFile:     *outputFile,
		Verbose:        *verbose,
	}

	log := logger.Named("simulate")
	if _, err := simulate.Run(ctx, cfg, log); err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}

package simulate

import "os"

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Cosmic Journey Simulator
========================

Drives a running server with concurrent players and verifies every run
and the leaderboard ordering afterwards.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string         Base URL of the service (default "http://localhost:3000")
  -secret string      JWT secret the server verifies tokens with (default $COSMIC_AUTH__JWT_SECRET or "your_secret_key")
  -players int        Number of simulated players (default 50)
  -steps int          Progress submissions per player (default 20)
  -duplicates float   Share of submissions resent with the same request id (default 0.1)
  -workers int        Players driven concurrently (default CPU cores * 2)
  -per-page int       Leaderboard page size used for verification (default 100)
  -legacy-rollover    Server runs with progression.legacy_one_percent_rollover
  -max-level int      Server's progression.max_level (default 0, unlimited)
  -timeout duration   HTTP request timeout (default 30s)
  -output string      Save generated player plans as JSON
  -log-format string  text or json (default "text")
  -verbose            Log every submission
  -help               Show this help message

Examples:
  go run ./cmd/simulate -players 200 -steps 50 -workers 32
  go run ./cmd/simulate -url http://localhost:8080 -output plans.json
`)
}

package simulate

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	randomFloatDivisor = 1_000_000
	// Increments are multiples of half a percent so sums stay exact.
	incrementHalves = 2
	maxIncrement    = 60
)

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomIncrement() float64 {
	halves := int(getRandomFloat() * maxIncrement * incrementHalves)
	return float64(halves) / incrementHalves
}

// GeneratePlans creates one plan per player. A DuplicateRatio share of
// steps is marked for resending with the same request id.
func GeneratePlans(cfg *Config) []Plan {
	plans := make([]Plan, cfg.Players)
	for i := range plans {
		steps := make([]Step, cfg.Steps)
		for j := range steps {
			steps[j] = Step{
				RequestID: uuid.NewString(),
				Increment: randomIncrement(),
				Resend:    getRandomFloat() < cfg.DuplicateRatio,
			}
		}
		plans[i] = Plan{UserID: "sim-" + uuid.NewString(), Steps: steps}
	}
	return plans
}

package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generator creates run identifiers used to correlate logs, locks and metrics.
type Generator interface {
	NewID() (string, error)
}

type RunIDGenerator struct {
	now func() time.Time
}

func NewRunIDGenerator() *RunIDGenerator {
	return &RunIDGenerator{now: time.Now}
}

// NewID returns "<utc timestamp>-<8 random hex bytes>", sortable by start time.
func (g *RunIDGenerator) NewID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return g.now().UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(buf), nil
}

package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/riskibarqy/fixture-harvester/internal/platform/logging"
	"github.com/riskibarqy/fixture-harvester/internal/usecase"
)

func TestRunExitCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"publish failure", fmt.Errorf("%w: sink store: commit: conn reset", usecase.ErrPublish), 1},
		{"lock backend down", fmt.Errorf("acquire run lock: %w", errors.New("dial tcp: connection refused")), 0},
		{"worker pool", fmt.Errorf("retrieve details: %w", errors.New("create detail worker pool")), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := runExitCode(logging.NewNop(), tc.err); got != tc.want {
				t.Fatalf("runExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

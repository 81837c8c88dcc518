package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
)

// CSVExporter writes the snapshot as a CSV file with a header row.
// Null fields become empty cells.
type CSVExporter struct {
	path string
}

func NewCSVExporter(path string) (*CSVExporter, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("csv export path is required")
	}
	return &CSVExporter{path: path}, nil
}

func (e *CSVExporter) Name() string { return "csv" }

func (e *CSVExporter) Path() string { return e.path }

func (e *CSVExporter) Write(ctx context.Context, items []fixture.NormalizedFixture) error {
	return e.Export(ctx, items)
}

func (e *CSVExporter) Export(ctx context.Context, items []fixture.NormalizedFixture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(e.path, csvWriter(items))
}

// Stage writes the CSV next to its final path without replacing it.
func (e *CSVExporter) Stage(ctx context.Context, items []fixture.NormalizedFixture) (fixture.StagedSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	staged, err := stageFile(e.path, csvWriter(items))
	if err != nil {
		return nil, err
	}
	return staged, nil
}

func csvWriter(items []fixture.NormalizedFixture) func(f *os.File) error {
	return func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, item := range items {
			if err := w.Write(row(item)); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
		return nil
	}
}

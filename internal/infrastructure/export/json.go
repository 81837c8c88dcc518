package export

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
)

// jsonRow keeps the column names of the table; date is rendered as YYYY-MM-DD.
type jsonRow struct {
	League      string  `json:"league"`
	HomeTeam    string  `json:"home_team"`
	AwayTeam    string  `json:"away_team"`
	Day         *string `json:"day"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Venue       *string `json:"venue"`
	City        *string `json:"city"`
	RoundNumber *string `json:"round_number"`
}

// JSONExporter writes the snapshot as a JSON array. Null fields stay null.
type JSONExporter struct {
	path string
}

func NewJSONExporter(path string) (*JSONExporter, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("json export path is required")
	}
	return &JSONExporter{path: path}, nil
}

func (e *JSONExporter) Name() string { return "json" }

func (e *JSONExporter) Path() string { return e.path }

func (e *JSONExporter) Write(ctx context.Context, items []fixture.NormalizedFixture) error {
	return e.Export(ctx, items)
}

func (e *JSONExporter) Export(ctx context.Context, items []fixture.NormalizedFixture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	write, err := jsonWriter(items)
	if err != nil {
		return err
	}
	return writeAtomic(e.path, write)
}

// Stage writes the JSON next to its final path without replacing it.
func (e *JSONExporter) Stage(ctx context.Context, items []fixture.NormalizedFixture) (fixture.StagedSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	write, err := jsonWriter(items)
	if err != nil {
		return nil, err
	}
	staged, err := stageFile(e.path, write)
	if err != nil {
		return nil, err
	}
	return staged, nil
}

func jsonWriter(items []fixture.NormalizedFixture) (func(f *os.File) error, error) {
	rows := make([]jsonRow, 0, len(items))
	for _, item := range items {
		var date *string
		if item.Date != nil {
			date = fixture.StringPtr(item.DateString())
		}
		rows = append(rows, jsonRow{
			League:      item.League,
			HomeTeam:    item.HomeTeam,
			AwayTeam:    item.AwayTeam,
			Day:         item.Day,
			Date:        date,
			Time:        item.Time,
			Venue:       item.Venue,
			City:        item.City,
			RoundNumber: item.RoundNumber,
		})
	}

	payload, err := sonic.ConfigStd.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal fixtures: %w", err)
	}

	return func(f *os.File) error {
		if _, err := f.Write(append(payload, '\n')); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
		return nil
	}, nil
}

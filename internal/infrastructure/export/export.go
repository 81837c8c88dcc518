package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/riskibarqy/fixture-harvester/internal/domain/fixture"
)

// Columns is the published column order, shared with the fixture table.
var Columns = []string{
	"league",
	"home_team",
	"away_team",
	"day",
	"date",
	"time",
	"venue",
	"city",
	"round_number",
}

func row(item fixture.NormalizedFixture) []string {
	return []string{
		item.League,
		item.HomeTeam,
		item.AwayTeam,
		fixture.Deref(item.Day),
		item.DateString(),
		fixture.Deref(item.Time),
		fixture.Deref(item.Venue),
		fixture.Deref(item.City),
		fixture.Deref(item.RoundNumber),
	}
}

// StagedFile is a fully written sibling temp file waiting to replace path.
type StagedFile struct {
	tmp  string
	path string
}

// Commit renames the temp file over the export path, so readers see either
// the previous snapshot or the new one.
func (f *StagedFile) Commit() error {
	if err := os.Rename(f.tmp, f.path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}

func (f *StagedFile) Discard() error {
	if err := os.Remove(f.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged export: %w", err)
	}
	return nil
}

func stageFile(path string, write func(f *os.File) error) (_ *StagedFile, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return nil, err
	}
	if err = tmp.Sync(); err != nil {
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	return &StagedFile{tmp: tmp.Name(), path: path}, nil
}

func writeAtomic(path string, write func(f *os.File) error) error {
	staged, err := stageFile(path, write)
	if err != nil {
		return err
	}
	if err := staged.Commit(); err != nil {
		_ = staged.Discard()
		return err
	}
	return nil
}

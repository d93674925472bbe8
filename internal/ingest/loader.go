package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"energy_forecast/internal/model"
	"energy_forecast/internal/monitoring"
)

// SourceSeries is the cleaned output of one input file.
type SourceSeries struct {
	Source   model.Source
	Readings []model.Reading
}

// Skipped records a file that could not be used and why.
type Skipped struct {
	Path string
	Err  error
}

// Loader turns export files into cleaned readings. Known Home Assistant
// layouts are tried first, then the generic column sniffer.
type Loader struct {
	// Entity narrows multi-entity exports. Empty picks the entity with the most rows.
	Entity  string
	parsers []TableParser
}

func NewLoader(entity string) *Loader {
	return &Loader{
		Entity: entity,
		parsers: []TableParser{
			&HomeAssistantParser{},
			&StatsParser{},
			&RecentParser{},
			&GenericParser{},
		},
	}
}

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xls", ".xlsx", ".db", ".sqlite":
		return true
	}
	return false
}

// LoadDirs walks each root and loads every supported file. Files that fail
// are collected in the skipped list; ErrNoUsableFiles is returned when none
// of them produced rows.
func (l *Loader) LoadDirs(roots ...string) ([]SourceSeries, []Skipped, error) {
	var paths []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	sort.Strings(paths)

	var (
		series  []SourceSeries
		skipped []Skipped
	)
	for _, path := range paths {
		s, err := l.LoadFile(path)
		if err != nil {
			skipped = append(skipped, Skipped{Path: path, Err: err})
			continue
		}
		monitoring.Logf("  Loaded %d rows from %s (%s)", len(s.Readings), path, s.Source.Schema)
		series = append(series, s)
	}

	if len(series) == 0 {
		return nil, skipped, ErrNoUsableFiles
	}
	return series, skipped, nil
}

// LoadFile reads one file, resolves its schema and returns cleaned readings:
// one entity, valid timestamps, strictly positive values.
func (l *Loader) LoadFile(path string) (SourceSeries, error) {
	t, err := readTable(path)
	if err != nil {
		return SourceSeries{}, err
	}
	t.Normalize()

	var parser TableParser
	for _, p := range l.parsers {
		if p.Matches(t.Header) {
			parser = p
			break
		}
	}

	readings, err := parser.ParseTable(t)
	if err != nil {
		return SourceSeries{}, err
	}

	schema := parser.Schema()
	if strings.EqualFold(filepath.Ext(path), ".db") || strings.EqualFold(filepath.Ext(path), ".sqlite") {
		schema = "ha_recorder"
	}

	src := model.Source{ID: path, Path: path, Schema: schema}
	if schema != SchemaGeneric {
		entity := l.Entity
		if entity == "" {
			entity = dominantEntity(readings)
		}
		readings = filterEntity(readings, entity)
		src.Entity = entity
		src.ID = path + "#" + entity
	}

	readings = dropNonPositive(readings)
	if len(readings) == 0 {
		return SourceSeries{}, ErrNoRows
	}
	for i := range readings {
		readings[i].SourceID = src.ID
	}
	return SourceSeries{Source: src, Readings: readings}, nil
}

func readTable(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xls", ".xlsx":
		return ReadExcel(path)
	case ".db", ".sqlite":
		return ReadRecorderDB(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// dominantEntity returns the entity with the most readings; ties go to the
// lexically smallest id.
func dominantEntity(readings []model.Reading) string {
	counts := make(map[string]int)
	for _, r := range readings {
		counts[r.SourceID]++
	}
	best, bestN := "", -1
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	return best
}

func filterEntity(readings []model.Reading, entity string) []model.Reading {
	out := readings[:0]
	for _, r := range readings {
		if r.SourceID == entity {
			out = append(out, r)
		}
	}
	return out
}

func dropNonPositive(readings []model.Reading) []model.Reading {
	out := readings[:0]
	for _, r := range readings {
		if r.Value > 0 {
			out = append(out, r)
		}
	}
	return out
}

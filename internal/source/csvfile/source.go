// Package csvfile reads patients and observations from a single flat CSV
// table, the escape hatch for ad-hoc exports that fit in one file.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

// Config names the columns of the flat table. Every row carries both the
// patient identity and one observation; patients repeat across rows and
// are deduplicated by identifier.
type Config struct {
	// Path is the CSV file to read.
	Path string
	// IDColumn is the patient identifier column. Required.
	IDColumn string
	// IdentifierSystem names the namespace of IDColumn values. Optional.
	IdentifierSystem string
	// NameColumn holds a "Given Family" patient name. Optional.
	NameColumn string
	// TypeColumn holds the observation type of each row. Either this or
	// DefaultType must be set.
	TypeColumn string
	// DefaultType is the observation type applied to every row when the
	// table has no type column.
	DefaultType source.ObservationType
	// ValueColumn holds the numeric measurement. Required.
	ValueColumn string
	// TimeColumn holds the recorded time as a FHIR dateTime. Optional.
	TimeColumn string
}

// Source is the CSV-backed data source. The table is loaded and filtered
// once at construction.
type Source struct {
	cfg    Config
	codes  *source.CodeTables
	logger *zap.Logger

	cols map[string]int
	rows [][]string // rows whose observation type is supported and value numeric
}

// New loads and filters the table. A missing file, missing required
// columns, or an empty configuration fail fast; rows with an unsupported
// type or a non-numeric value are dropped during filtering.
func New(cfg Config, codes *source.CodeTables, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IDColumn == "" || cfg.ValueColumn == "" {
		return nil, fmt.Errorf("csv source requires identifier and value columns")
	}
	if cfg.TypeColumn == "" && cfg.DefaultType == "" {
		return nil, fmt.Errorf("csv source requires a type column or a default observation type")
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv source: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv source %s: %w", cfg.Path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv source %s is empty", cfg.Path)
	}

	s := &Source{cfg: cfg, codes: codes, logger: logger, cols: make(map[string]int)}
	for i, h := range records[0] {
		s.cols[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{cfg.IDColumn, cfg.ValueColumn} {
		if _, ok := s.cols[col]; !ok {
			return nil, fmt.Errorf("csv source %s has no column %q", cfg.Path, col)
		}
	}
	if cfg.TypeColumn != "" {
		if _, ok := s.cols[cfg.TypeColumn]; !ok {
			return nil, fmt.Errorf("csv source %s has no column %q", cfg.Path, cfg.TypeColumn)
		}
	}

	dropped := 0
	for _, row := range records[1:] {
		typ := cfg.DefaultType
		if cfg.TypeColumn != "" {
			typ = source.ObservationType(s.get(row, cfg.TypeColumn))
		}
		if !codes.Supported(typ) {
			dropped++
			continue
		}
		if _, err := strconv.ParseFloat(s.get(row, cfg.ValueColumn), 64); err != nil {
			dropped++
			continue
		}
		s.rows = append(s.rows, row)
	}
	if dropped > 0 {
		logger.Info("csv rows dropped during filtering",
			zap.String("path", cfg.Path),
			zap.Int("dropped", dropped))
	}

	return s, nil
}

func (s *Source) get(row []string, col string) string {
	i, ok := s.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Patients enumerates the distinct patients of the table, keeping the
// first occurrence of each identifier.
func (s *Source) Patients(ctx context.Context) source.Patients {
	seen := make(map[string]bool)
	var views []source.Patient
	for _, row := range s.rows {
		id := s.get(row, s.cfg.IDColumn)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		views = append(views, &patient{src: s, row: row})
	}
	return source.NewPatientList(views)
}

// Observations enumerates the rows whose identifier column equals the
// patient's identifier.
func (s *Source) Observations(ctx context.Context, p source.Patient) source.Observations {
	id, _ := source.Identifier(p)
	var views []source.Observation
	for _, row := range s.rows {
		if s.get(row, s.cfg.IDColumn) != id {
			continue
		}
		views = append(views, &observation{src: s, row: row})
	}
	return source.NewObservationList(views)
}

// patient is a view over the first row seen for one identifier.
type patient struct {
	src *Source
	row []string
}

func (p *patient) IdentifierValue() string  { return p.src.get(p.row, p.src.cfg.IDColumn) }
func (p *patient) IdentifierSystem() string { return p.src.cfg.IdentifierSystem }

// Name splits a "Given Family" name column. Views on tables without a name
// column do not implement NameProvider semantics and report no name, which
// makes the mapper generate one.
func (p *patient) Name() (family, given string) {
	if p.src.cfg.NameColumn == "" {
		return "", ""
	}
	parts := strings.Fields(p.src.get(p.row, p.src.cfg.NameColumn))
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-1], strings.Join(parts[:len(parts)-1], " ")
}

// observation is a view over one data row.
type observation struct {
	src *Source
	row []string
}

func (o *observation) ObservationType() source.ObservationType {
	if o.src.cfg.TypeColumn != "" {
		return source.ObservationType(o.src.get(o.row, o.src.cfg.TypeColumn))
	}
	return o.src.cfg.DefaultType
}

func (o *observation) Value() float64 {
	v, _ := strconv.ParseFloat(o.src.get(o.row, o.src.cfg.ValueColumn), 64)
	return v
}

func (o *observation) EffectiveTime() string {
	if o.src.cfg.TimeColumn == "" {
		return ""
	}
	return o.src.get(o.row, o.src.cfg.TimeColumn)
}

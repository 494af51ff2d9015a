// Package mimic3 loads the subset of the MIMIC-III critical-care dataset
// this exporter understands: NICU stays, their patients, and the supported
// chart-event measurements.
package mimic3

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

// Identifier systems linking exported resources back to their MIMIC rows.
const (
	PatientIdentifierSystem     = "https://mimic.mit.edu/docs/iii/tables/patients/#subject_id"
	ObservationIdentifierSystem = "ROW_ID in https://mimic.mit.edu/docs/iii/tables/chartevents/"
)

// itemIDs maps each supported observation type to its D_ITEMS item id,
// determined by exploring the D_ITEMS dictionary table.
var itemIDs = map[source.ObservationType]int{
	source.TypeFiO2:      3420,
	source.TypePIP:       507,
	source.TypePEEP:      505,
	source.TypeHeartRate: 211,
	source.TypeSaO2:      834,
}

// chartTimeZone fixes chart times to Eastern; the dataset's times are
// century-shifted anyway, the offset just keeps them well-formed.
var chartTimeZone = time.FixedZone("EST", -5*60*60)

const (
	stoppedActive = "NotStopd"
	careUnitNICU  = "NICU"
)

// Config holds the locations of the dataset and its schema descriptions.
type Config struct {
	// DataDir contains the compressed tables (<TABLE>.csv.gz).
	DataDir string
	// SchemaDir contains the schema descriptions (<TABLE>.txt).
	SchemaDir string
	// ChunkSize is the number of chart-event rows read per chunk.
	ChunkSize int
}

// DefaultConfig returns defaults matching the published dataset layout.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:   dataDir,
		SchemaDir: "./mimic3-schemas",
		ChunkSize: 1_000_000,
	}
}

// Source reads NICU patients and their supported chart events from a
// MIMIC-III directory. All filtering happens at construction; enumeration
// only walks the retained rows.
type Source struct {
	codes  *source.CodeTables
	logger *zap.Logger

	patients    *table // NICU patients only
	chartEvents *table // supported, active, numeric NICU chart events only
	itemLabels  map[int]string
	typeByItem  map[int]source.ObservationType
}

// New loads the backing tables. Missing directories or files, malformed
// schema descriptions and unknown type tokens all fail here; a chart-event
// row that does not pass the filters is silently dropped.
func New(cfg Config, codes *source.CodeTables, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig(cfg.DataDir).ChunkSize
	}
	if fi, err := os.Stat(cfg.DataDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("not a valid MIMIC-III data directory: %s", cfg.DataDir)
	}
	if fi, err := os.Stat(cfg.SchemaDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("not a valid MIMIC-III schema directory: %s", cfg.SchemaDir)
	}

	s := &Source{
		codes:      codes,
		logger:     logger,
		typeByItem: make(map[int]source.ObservationType, len(itemIDs)),
	}
	for typ, id := range itemIDs {
		if codes.Supported(typ) {
			s.typeByItem[id] = typ
		}
	}

	stays, err := readTable(cfg.DataDir, cfg.SchemaDir, "ICUSTAYS")
	if err != nil {
		return nil, err
	}
	nicuStays := make(map[string]bool)
	nicuSubjects := make(map[string]bool)
	for _, row := range stays.rows {
		if stays.get(row, "FIRST_CAREUNIT") != careUnitNICU {
			continue
		}
		nicuStays[stays.get(row, "ICUSTAY_ID")] = true
		nicuSubjects[stays.get(row, "SUBJECT_ID")] = true
	}

	allPatients, err := readTable(cfg.DataDir, cfg.SchemaDir, "PATIENTS")
	if err != nil {
		return nil, err
	}
	s.patients = &table{cols: allPatients.cols}
	for _, row := range allPatients.rows {
		if nicuSubjects[allPatients.get(row, "SUBJECT_ID")] {
			s.patients.rows = append(s.patients.rows, row)
		}
	}

	items, err := readTable(cfg.DataDir, cfg.SchemaDir, "D_ITEMS")
	if err != nil {
		return nil, err
	}
	s.itemLabels = make(map[int]string)
	for _, row := range items.rows {
		if id, err := strconv.Atoi(items.get(row, "ITEMID")); err == nil {
			s.itemLabels[id] = items.get(row, "LABEL")
		}
	}

	chunk := 0
	s.chartEvents, err = streamTable(cfg.DataDir, cfg.SchemaDir, "CHARTEVENTS", cfg.ChunkSize,
		func(t *table, rows [][]string) [][]string {
			kept := rows[:0]
			for _, row := range rows {
				if !nicuStays[t.get(row, "ICUSTAY_ID")] {
					continue
				}
				if !s.supportedEvent(t, row) {
					continue
				}
				kept = append(kept, row)
			}
			chunk++
			logger.Info("chart events chunk filtered",
				zap.Int("chunk", chunk),
				zap.Int("kept", len(kept)))
			return kept
		})
	if err != nil {
		return nil, err
	}

	logger.Info("MIMIC-III tables loaded",
		zap.Int("nicu_patients", len(s.patients.rows)),
		zap.Int("supported_chart_events", len(s.chartEvents.rows)))

	return s, nil
}

// supportedEvent keeps only measurements with a supported item code, not
// discontinued, and carrying a present numeric value.
func (s *Source) supportedEvent(t *table, row []string) bool {
	itemID, err := strconv.Atoi(t.get(row, "ITEMID"))
	if err != nil {
		return false
	}
	if _, ok := s.typeByItem[itemID]; !ok {
		return false
	}
	if t.get(row, "STOPPED") != stoppedActive {
		return false
	}
	v, err := strconv.ParseFloat(t.get(row, "VALUENUM"), 64)
	if err != nil || math.IsNaN(v) {
		return false
	}
	return true
}

// Patients enumerates the NICU patients.
func (s *Source) Patients(ctx context.Context) source.Patients {
	views := make([]source.Patient, 0, len(s.patients.rows))
	for _, row := range s.patients.rows {
		views = append(views, &patient{t: s.patients, row: row})
	}
	return source.NewPatientList(views)
}

// Observations enumerates the retained chart events of one patient,
// matched by MIMIC subject id.
func (s *Source) Observations(ctx context.Context, p source.Patient) source.Observations {
	subjectID, _ := source.Identifier(p)
	var views []source.Observation
	for _, row := range s.chartEvents.rows {
		if s.chartEvents.get(row, "SUBJECT_ID") != subjectID {
			continue
		}
		itemID, _ := strconv.Atoi(s.chartEvents.get(row, "ITEMID"))
		views = append(views, &observation{
			t:       s.chartEvents,
			row:     row,
			typ:     s.typeByItem[itemID],
			display: s.itemLabels[itemID],
		})
	}
	return source.NewObservationList(views)
}

// patient is a view over one PATIENTS row.
type patient struct {
	t   *table
	row []string
}

func (p *patient) Gender() source.Gender {
	switch p.t.get(p.row, "GENDER") {
	case "M":
		return source.GenderMale
	case "F":
		return source.GenderFemale
	default:
		return source.GenderUnknown
	}
}

func (p *patient) IdentifierValue() string  { return p.t.get(p.row, "SUBJECT_ID") }
func (p *patient) IdentifierSystem() string { return PatientIdentifierSystem }

func (p *patient) BirthDate() string {
	raw := p.t.get(p.row, "DOB")
	if ts, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return ts.Format(fhir.DateFormat)
	}
	if ts, err := time.Parse(fhir.DateFormat, raw); err == nil {
		return ts.Format(fhir.DateFormat)
	}
	return ""
}

// observation is a view over one CHARTEVENTS row.
type observation struct {
	t       *table
	row     []string
	typ     source.ObservationType
	display string
}

func (o *observation) ObservationType() source.ObservationType { return o.typ }

func (o *observation) Value() float64 {
	v, _ := strconv.ParseFloat(o.t.get(o.row, "VALUENUM"), 64)
	return v
}

func (o *observation) UnitString() string { return o.t.get(o.row, "VALUEUOM") }

func (o *observation) DisplayString() string {
	if o.display != "" {
		return o.display
	}
	return string(o.typ)
}

func (o *observation) IdentifierValue() string  { return o.t.get(o.row, "ROW_ID") }
func (o *observation) IdentifierSystem() string { return ObservationIdentifierSystem }

func (o *observation) EffectiveTime() string {
	raw := o.t.get(o.row, "CHARTTIME")
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", raw, chartTimeZone)
	if err != nil {
		return ""
	}
	return ts.Format(fhir.DateTimeFormat)
}

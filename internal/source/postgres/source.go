// Package postgres reads patients and observations from a relational
// store, for deployments that stage extracted records in a database
// rather than flat files.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

// IdentifierSystem names the namespace of staged subject ids.
const IdentifierSystem = "urn:lungair:postgres:subject_id"

// Source enumerates staged records from the patients and observations
// tables. Unsupported observation types are excluded in the query, so the
// views it hands out always map cleanly.
type Source struct {
	pool   *pgxpool.Pool
	codes  *source.CodeTables
	logger *zap.Logger
	types  []string
}

// New connects to the database and verifies the connection. An unreachable
// database fails construction.
func New(ctx context.Context, databaseURL string, codes *source.CodeTables, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	var types []string
	for _, t := range codes.Types() {
		types = append(types, string(t))
	}

	return &Source{pool: pool, codes: codes, logger: logger, types: types}, nil
}

// Close releases the connection pool.
func (s *Source) Close() { s.pool.Close() }

// Patients streams the patients table. The sequence is backed by an open
// cursor and cannot be rewound.
func (s *Source) Patients(ctx context.Context) source.Patients {
	query := `
		SELECT subject_id, gender, birth_date
		FROM patients
		ORDER BY subject_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return &patientRows{err: fmt.Errorf("query patients: %w", err)}
	}
	return &patientRows{rows: rows}
}

// Observations streams one patient's rows, restricted to supported
// observation types.
func (s *Source) Observations(ctx context.Context, p source.Patient) source.Observations {
	subjectID, _ := source.Identifier(p)
	query := `
		SELECT id, observation_type, value, unit, recorded_at
		FROM observations
		WHERE subject_id = $1
		  AND observation_type = ANY($2)
		ORDER BY recorded_at
	`
	rows, err := s.pool.Query(ctx, query, subjectID, s.types)
	if err != nil {
		return &observationRows{err: fmt.Errorf("query observations: %w", err)}
	}
	return &observationRows{rows: rows}
}

// patientRows adapts a pgx cursor to the Patients contract.
type patientRows struct {
	rows pgx.Rows
	err  error
}

func (r *patientRows) Next() (source.Patient, bool) {
	if r.err != nil || r.rows == nil {
		return nil, false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		r.rows.Close()
		return nil, false
	}
	p := &patient{}
	var born *time.Time
	if err := r.rows.Scan(&p.subjectID, &p.gender, &born); err != nil {
		r.err = fmt.Errorf("scan patient: %w", err)
		r.rows.Close()
		return nil, false
	}
	if born != nil {
		p.birthDate = born.Format(fhir.DateFormat)
	}
	return p, true
}

func (r *patientRows) Err() error { return r.err }

// observationRows adapts a pgx cursor to the Observations contract.
type observationRows struct {
	rows pgx.Rows
	err  error
}

func (r *observationRows) Next() (source.Observation, bool) {
	if r.err != nil || r.rows == nil {
		return nil, false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		r.rows.Close()
		return nil, false
	}
	o := &observation{}
	var recorded *time.Time
	var typ string
	if err := r.rows.Scan(&o.id, &typ, &o.value, &o.unit, &recorded); err != nil {
		r.err = fmt.Errorf("scan observation: %w", err)
		r.rows.Close()
		return nil, false
	}
	o.typ = source.ObservationType(typ)
	if recorded != nil {
		o.recordedAt = recorded.Format(fhir.DateTimeFormat)
	}
	return o, true
}

func (r *observationRows) Err() error { return r.err }

type patient struct {
	subjectID string
	gender    string
	birthDate string
}

func (p *patient) Gender() source.Gender {
	switch p.gender {
	case "M", "male":
		return source.GenderMale
	case "F", "female":
		return source.GenderFemale
	case "other":
		return source.GenderOther
	default:
		return source.GenderUnknown
	}
}

func (p *patient) IdentifierValue() string  { return p.subjectID }
func (p *patient) IdentifierSystem() string { return IdentifierSystem }
func (p *patient) BirthDate() string        { return p.birthDate }

type observation struct {
	id         int64
	typ        source.ObservationType
	value      float64
	unit       *string
	recordedAt string
}

func (o *observation) ObservationType() source.ObservationType { return o.typ }
func (o *observation) Value() float64                          { return o.value }

func (o *observation) UnitString() string {
	if o.unit == nil {
		return ""
	}
	return *o.unit
}

func (o *observation) IdentifierValue() string  { return fmt.Sprintf("%d", o.id) }
func (o *observation) IdentifierSystem() string { return IdentifierSystem }
func (o *observation) EffectiveTime() string    { return o.recordedAt }

// Package random generates synthetic patients and measurements for load
// tests and demos. Values are plausible in shape, not clinically faithful.
package random

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

// IdentifierSystem marks identifiers of synthetic records.
const IdentifierSystem = "urn:lungair:synthetic"

// Source produces a fixed number of patients, each with a fixed number of
// observations of randomly chosen supported type. Observation times always
// fall between the patient's generated birth date and the moment of
// generation.
type Source struct {
	numPatients        int
	numObsPerPatient   int
	codes              *source.CodeTables
	rng                *rand.Rand
	types              []source.ObservationType
	birthDateByPatient map[string]time.Time
}

// New creates a synthetic source. A fixed seed replays the same cohort.
func New(numPatients, numObsPerPatient int, codes *source.CodeTables, seed int64) *Source {
	return &Source{
		numPatients:        numPatients,
		numObsPerPatient:   numObsPerPatient,
		codes:              codes,
		rng:                rand.New(rand.NewSource(seed)),
		types:              codes.Types(),
		birthDateByPatient: make(map[string]time.Time, numPatients),
	}
}

// Patients generates the synthetic cohort. Each patient gets a uuid
// identifier, a random gender, and a birth date in the past.
func (s *Source) Patients(ctx context.Context) source.Patients {
	now := time.Now()
	views := make([]source.Patient, 0, s.numPatients)
	for i := 0; i < s.numPatients; i++ {
		id := uuid.NewString()
		born := now.Add(-time.Duration(1+s.rng.Int63n(int64(90*365*24))) * time.Hour)
		s.birthDateByPatient[id] = born
		views = append(views, &patient{
			id:     id,
			gender: []source.Gender{source.GenderMale, source.GenderFemale}[s.rng.Intn(2)],
			born:   born,
		})
	}
	return source.NewPatientList(views)
}

// Observations generates the patient's measurements, timestamped between
// the patient's birth date and now.
func (s *Source) Observations(ctx context.Context, p source.Patient) source.Observations {
	id, _ := source.Identifier(p)
	born, ok := s.birthDateByPatient[id]
	if !ok {
		born = time.Now().Add(-24 * time.Hour)
	}
	now := time.Now()
	window := now.Sub(born)

	views := make([]source.Observation, 0, s.numObsPerPatient)
	for i := 0; i < s.numObsPerPatient; i++ {
		at := born.Add(time.Duration(s.rng.Int63n(int64(window))))
		views = append(views, &observation{
			id:    uuid.NewString(),
			typ:   s.types[s.rng.Intn(len(s.types))],
			value: float64(s.rng.Intn(101)),
			at:    at,
		})
	}
	return source.NewObservationList(views)
}

type patient struct {
	id     string
	gender source.Gender
	born   time.Time
}

func (p *patient) Gender() source.Gender    { return p.gender }
func (p *patient) IdentifierValue() string  { return p.id }
func (p *patient) IdentifierSystem() string { return IdentifierSystem }
func (p *patient) BirthDate() string        { return p.born.Format(fhir.DateFormat) }

type observation struct {
	id    string
	typ   source.ObservationType
	value float64
	at    time.Time
}

func (o *observation) ObservationType() source.ObservationType { return o.typ }
func (o *observation) Value() float64                          { return o.value }
func (o *observation) IdentifierValue() string                 { return o.id }
func (o *observation) IdentifierSystem() string                { return IdentifierSystem }
func (o *observation) EffectiveTime() string                   { return o.at.Format(fhir.DateTimeFormat) }

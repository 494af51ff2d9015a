// Package source defines the data-source abstraction: read-only views over
// raw patient and observation records, the code tables that normalize
// observation types, and the enumeration contract every backing store
// implements.
//
// Views are deliberately minimal. A concrete record type opts into an
// attribute by implementing the matching capability interface; everything a
// record does not provide falls back to a documented default applied by the
// accessor functions below. This replaces the usual embedded-base-with-
// overrides layout so that no default is hidden inside a method body the
// caller never sees.
package source

import "context"

// Gender is the administrative gender of a patient, using the FHIR
// value set (https://www.hl7.org/fhir/valueset-administrative-gender.html).
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// Patient is a read-only view over one raw patient record. Every attribute
// is optional; implementations expose what they have through the capability
// interfaces (GenderProvider, IdentifierProvider, BirthDateProvider,
// NameProvider) and the accessors in this package supply defaults for the
// rest. Views borrow the underlying record and are discarded after mapping.
type Patient interface{}

// Observation is a read-only view over one raw measurement record. The
// observation type and numeric value are required; unit, display, coding,
// identifier and time are optional capabilities.
type Observation interface {
	// ObservationType returns the normalized type of this measurement.
	// Records whose source code maps to no supported type must be
	// filtered out by the data source before a view is ever built.
	ObservationType() ObservationType

	// Value returns the measured value.
	Value() float64
}

// GenderProvider is implemented by patient views that know the patient's
// gender. Default when unimplemented: GenderUnknown.
type GenderProvider interface {
	Gender() Gender
}

// IdentifierProvider is implemented by views that carry a source-specific
// identifier. The value is a key into the backing store, not the id the
// destination server assigns. Default when unimplemented: no identifier
// block on the mapped resource. An empty system with a non-empty value is
// legal; a system without a value is treated as no identifier at all.
type IdentifierProvider interface {
	IdentifierValue() string
	IdentifierSystem() string
}

// BirthDateProvider is implemented by patient views that know the date of
// birth, as a FHIR date string. Default when unimplemented: no birth date.
type BirthDateProvider interface {
	BirthDate() string
}

// NameProvider is implemented by patient views that carry a real name.
// Default when unimplemented, or when the view returns an empty pair:
// a generated pseudonym consistent with the patient's gender.
type NameProvider interface {
	Name() (family, given string)
}

// UnitStringProvider is implemented by observation views that carry a
// human-readable unit from the source record. Default when unimplemented,
// or when the view returns "": the UCUM unit code from the code tables.
type UnitStringProvider interface {
	UnitString() string
}

// DisplayStringProvider is implemented by observation views that carry
// their own display text. Default when unimplemented: the display string
// from the code tables.
type DisplayStringProvider interface {
	DisplayString() string
}

// CodingProvider is implemented by observation views that override the
// coded form of the observation type. Default when unimplemented: the
// LOINC code and system from the code tables.
type CodingProvider interface {
	CodingValue() string
	CodingSystem() string
}

// EffectiveTimeProvider is implemented by observation views that know when
// the measurement was recorded, as a FHIR dateTime string. Default when
// unimplemented: no effective time on the mapped resource.
type EffectiveTimeProvider interface {
	EffectiveTime() string
}

// Patients enumerates patient views: a finite, single-pass sequence that is
// not restartable without re-querying the backing store. Err reports the
// first enumeration failure once Next has returned false.
type Patients interface {
	Next() (Patient, bool)
	Err() error
}

// Observations enumerates observation views under the same contract as
// Patients.
type Observations interface {
	Next() (Observation, bool)
	Err() error
}

// DataSource is a backing store of patient records and their measurements.
type DataSource interface {
	// Patients enumerates every patient in the store.
	Patients(ctx context.Context) Patients

	// Observations enumerates the measurements belonging to one patient
	// previously returned by Patients.
	Observations(ctx context.Context, p Patient) Observations
}

// PatientGender returns the view's gender, or GenderUnknown when the view
// does not provide one.
func PatientGender(p Patient) Gender {
	if g, ok := p.(GenderProvider); ok {
		return g.Gender()
	}
	return GenderUnknown
}

// Identifier returns the view's identifier value and system. A view without
// IdentifierProvider, or one whose value is empty, yields ("", "").
func Identifier(v interface{}) (value, system string) {
	id, ok := v.(IdentifierProvider)
	if !ok {
		return "", ""
	}
	value = id.IdentifierValue()
	if value == "" {
		// A system with no value is not an identifier.
		return "", ""
	}
	return value, id.IdentifierSystem()
}

// PatientBirthDate returns the view's date of birth, or "" when absent.
func PatientBirthDate(p Patient) string {
	if b, ok := p.(BirthDateProvider); ok {
		return b.BirthDate()
	}
	return ""
}

// ObservationEffectiveTime returns the view's recorded time, or "" when
// absent.
func ObservationEffectiveTime(o Observation) string {
	if t, ok := o.(EffectiveTimeProvider); ok {
		return t.EffectiveTime()
	}
	return ""
}

// PatientList is an in-memory Patients sequence. The slice is consumed in
// order and the sequence cannot be rewound.
type PatientList struct {
	items []Patient
	pos   int
}

// NewPatientList wraps already-materialized views in a Patients sequence.
func NewPatientList(items []Patient) *PatientList {
	return &PatientList{items: items}
}

func (l *PatientList) Next() (Patient, bool) {
	if l.pos >= len(l.items) {
		return nil, false
	}
	p := l.items[l.pos]
	l.pos++
	return p, true
}

func (l *PatientList) Err() error { return nil }

// ObservationList is an in-memory Observations sequence.
type ObservationList struct {
	items []Observation
	pos   int
}

// NewObservationList wraps already-materialized views in an Observations
// sequence.
func NewObservationList(items []Observation) *ObservationList {
	return &ObservationList{items: items}
}

func (l *ObservationList) Next() (Observation, bool) {
	if l.pos >= len(l.items) {
		return nil, false
	}
	o := l.items[l.pos]
	l.pos++
	return o, true
}

func (l *ObservationList) Err() error { return nil }

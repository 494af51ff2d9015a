// Package mapper transforms source views into FHIR R4 resources.
package mapper

import (
	"fmt"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

// Mapper converts patient and observation views into wire-ready resources.
// The code tables are fixed at construction; mapping the same view twice
// yields structurally identical resources.
type Mapper struct {
	codes *source.CodeTables
	names *source.NameGenerator
}

// New creates a mapper over the given code tables and name generator.
func New(codes *source.CodeTables, names *source.NameGenerator) *Mapper {
	return &Mapper{codes: codes, names: names}
}

// MapPatient builds a FHIR Patient from a view. Patients without a name get
// a generated pseudonym consistent with their gender; the identifier block
// is emitted only when the view carries an identifier value, with the
// system attached only when it too is present.
func (m *Mapper) MapPatient(p source.Patient) *fhir.Patient {
	gender := source.PatientGender(p)

	var family, given string
	if n, ok := p.(source.NameProvider); ok {
		family, given = n.Name()
	}
	if family == "" && given == "" {
		family, given = m.names.Generate(gender)
	}

	resource := &fhir.Patient{
		ResourceType: "Patient",
		Gender:       string(gender),
		Name: []fhir.HumanName{
			{Family: family, Given: []string{given}},
		},
	}

	if dob := source.PatientBirthDate(p); dob != "" {
		resource.BirthDate = dob
	}

	if value, system := source.Identifier(p); value != "" {
		resource.Identifier = []fhir.Identifier{{System: system, Value: value}}
	}

	return resource
}

// MapObservation builds a FHIR Observation from a view, linked to the
// patient the destination server assigned subjectID to. Unit, display and
// coding come from the code tables unless the view overrides them; status
// is always "final".
func (m *Mapper) MapObservation(o source.Observation, subjectID string) (*fhir.Observation, error) {
	typ := o.ObservationType()
	entry, err := m.codes.Lookup(typ)
	if err != nil {
		return nil, fmt.Errorf("map observation: %w", err)
	}

	unitString := entry.UnitCode
	if u, ok := o.(source.UnitStringProvider); ok {
		if v := u.UnitString(); v != "" {
			unitString = v
		}
	}
	display := entry.Display
	if d, ok := o.(source.DisplayStringProvider); ok {
		if v := d.DisplayString(); v != "" {
			display = v
		}
	}
	codeValue, codeSystem := entry.Code, entry.System
	if c, ok := o.(source.CodingProvider); ok {
		if v, sys := c.CodingValue(), c.CodingSystem(); v != "" && sys != "" {
			codeValue, codeSystem = v, sys
		}
	}

	resource := &fhir.Observation{
		ResourceType: "Observation",
		Status:       fhir.ObservationStatusFinal,
		Code: fhir.CodeableConcept{
			Coding: []fhir.Coding{
				{System: codeSystem, Code: codeValue, Display: display},
			},
		},
		Subject: &fhir.Reference{Reference: "Patient/" + subjectID},
		ValueQuantity: &fhir.Quantity{
			Value:  o.Value(),
			Unit:   unitString,
			Code:   entry.UnitCode,
			System: fhir.SystemUCUM,
		},
	}

	if t := source.ObservationEffectiveTime(o); t != "" {
		resource.EffectiveDateTime = t
	}

	if value, system := source.Identifier(o); value != "" {
		resource.Identifier = []fhir.Identifier{{System: system, Value: value}}
	}

	return resource, nil
}

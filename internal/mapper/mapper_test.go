package mapper

import (
	"errors"
	"testing"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

func newTestMapper() *Mapper {
	return New(source.DefaultCodeTables(), source.NewNameGenerator(1))
}

// barePatient implements no capability interfaces.
type barePatient struct{}

type testPatient struct {
	gender source.Gender
	value  string
	system string
	born   string
	family string
	given  string
}

func (p *testPatient) Gender() source.Gender     { return p.gender }
func (p *testPatient) IdentifierValue() string   { return p.value }
func (p *testPatient) IdentifierSystem() string  { return p.system }
func (p *testPatient) BirthDate() string         { return p.born }
func (p *testPatient) Name() (family, given string) { return p.family, p.given }

type testObservation struct {
	typ     source.ObservationType
	value   float64
	unit    string
	display string
	code    string
	system  string
	idValue string
	idSys   string
	at      string
}

func (o *testObservation) ObservationType() source.ObservationType { return o.typ }
func (o *testObservation) Value() float64                          { return o.value }
func (o *testObservation) UnitString() string                      { return o.unit }
func (o *testObservation) DisplayString() string                   { return o.display }
func (o *testObservation) CodingValue() string                     { return o.code }
func (o *testObservation) CodingSystem() string                    { return o.system }
func (o *testObservation) IdentifierValue() string                 { return o.idValue }
func (o *testObservation) IdentifierSystem() string                { return o.idSys }
func (o *testObservation) EffectiveTime() string                   { return o.at }

func TestMapPatientDefaults(t *testing.T) {
	m := newTestMapper()

	p := m.MapPatient(&barePatient{})
	if p.ResourceType != "Patient" {
		t.Errorf("ResourceType = %q", p.ResourceType)
	}
	if p.Gender != "unknown" {
		t.Errorf("Gender = %q, want unknown", p.Gender)
	}
	if len(p.Name) != 1 || p.Name[0].Family == "" || len(p.Name[0].Given) != 1 || p.Name[0].Given[0] == "" {
		t.Errorf("expected a generated name, got %+v", p.Name)
	}
	if p.BirthDate != "" {
		t.Errorf("BirthDate = %q, want empty", p.BirthDate)
	}
	if len(p.Identifier) != 0 {
		t.Errorf("expected no identifier, got %+v", p.Identifier)
	}
}

func TestMapPatientFullView(t *testing.T) {
	m := newTestMapper()

	p := m.MapPatient(&testPatient{
		gender: source.GenderFemale,
		value:  "1234",
		system: "urn:test:subject",
		born:   "2014-03-09",
		family: "Nguyen",
		given:  "Mai",
	})

	if p.Gender != "female" {
		t.Errorf("Gender = %q", p.Gender)
	}
	if p.BirthDate != "2014-03-09" {
		t.Errorf("BirthDate = %q", p.BirthDate)
	}
	if p.Name[0].Family != "Nguyen" || p.Name[0].Given[0] != "Mai" {
		t.Errorf("name not carried over: %+v", p.Name)
	}
	if len(p.Identifier) != 1 || p.Identifier[0].Value != "1234" || p.Identifier[0].System != "urn:test:subject" {
		t.Errorf("identifier = %+v", p.Identifier)
	}
}

func TestMapPatientIdentifierRules(t *testing.T) {
	m := newTestMapper()

	// Value without a system: identifier block with value only.
	p := m.MapPatient(&testPatient{value: "55"})
	if len(p.Identifier) != 1 || p.Identifier[0].Value != "55" || p.Identifier[0].System != "" {
		t.Errorf("value-only identifier = %+v", p.Identifier)
	}

	// System without a value: no identifier block at all.
	p = m.MapPatient(&testPatient{system: "urn:test"})
	if len(p.Identifier) != 0 {
		t.Errorf("system-only view produced an identifier: %+v", p.Identifier)
	}
}

func TestMapPatientEmptyNamePairGetsPseudonym(t *testing.T) {
	m := newTestMapper()

	// The view implements NameProvider but has nothing to report.
	p := m.MapPatient(&testPatient{gender: source.GenderMale})
	if p.Name[0].Family == "" || p.Name[0].Given[0] == "" {
		t.Errorf("expected a pseudonym, got %+v", p.Name)
	}
}

func TestMapObservationDefaults(t *testing.T) {
	m := newTestMapper()

	obs, err := m.MapObservation(&testObservation{typ: source.TypeHeartRate, value: 142}, "abc")
	if err != nil {
		t.Fatalf("MapObservation failed: %v", err)
	}

	if obs.ResourceType != "Observation" {
		t.Errorf("ResourceType = %q", obs.ResourceType)
	}
	if obs.Status != fhir.ObservationStatusFinal {
		t.Errorf("Status = %q", obs.Status)
	}
	if obs.Subject == nil || obs.Subject.Reference != "Patient/abc" {
		t.Errorf("Subject = %+v", obs.Subject)
	}
	if obs.ValueQuantity == nil || obs.ValueQuantity.Value != 142 {
		t.Fatalf("ValueQuantity = %+v", obs.ValueQuantity)
	}
	// No unit string on the view: the UCUM code doubles as the unit.
	if obs.ValueQuantity.Unit != "/min" || obs.ValueQuantity.Code != "/min" {
		t.Errorf("unit = %q, code = %q", obs.ValueQuantity.Unit, obs.ValueQuantity.Code)
	}
	if obs.ValueQuantity.System != fhir.SystemUCUM {
		t.Errorf("quantity system = %q", obs.ValueQuantity.System)
	}
	if len(obs.Code.Coding) != 1 || obs.Code.Coding[0].Code != "8867-4" || obs.Code.Coding[0].System != "http://loinc.org" {
		t.Errorf("coding = %+v", obs.Code.Coding)
	}
	if obs.EffectiveDateTime != "" {
		t.Errorf("EffectiveDateTime = %q, want empty", obs.EffectiveDateTime)
	}
}

func TestMapObservationOverrides(t *testing.T) {
	m := newTestMapper()

	obs, err := m.MapObservation(&testObservation{
		typ:     source.TypeSaO2,
		value:   97.5,
		unit:    "percent",
		display: "O2 Saturation (SaO2)",
		code:    "0-1",
		system:  "urn:custom:codes",
		idValue: "row-991",
		idSys:   "urn:test:rows",
		at:      "2126-01-18T09:30:00-05:00",
	}, "xyz")
	if err != nil {
		t.Fatalf("MapObservation failed: %v", err)
	}

	if obs.ValueQuantity.Unit != "percent" {
		t.Errorf("Unit = %q, want the view's unit string", obs.ValueQuantity.Unit)
	}
	// The coded unit always comes from the tables.
	if obs.ValueQuantity.Code != "%" {
		t.Errorf("unit Code = %q, want %%", obs.ValueQuantity.Code)
	}
	if obs.Code.Coding[0].Display != "O2 Saturation (SaO2)" {
		t.Errorf("Display = %q", obs.Code.Coding[0].Display)
	}
	if obs.Code.Coding[0].Code != "0-1" || obs.Code.Coding[0].System != "urn:custom:codes" {
		t.Errorf("coding override not honored: %+v", obs.Code.Coding[0])
	}
	if obs.EffectiveDateTime != "2126-01-18T09:30:00-05:00" {
		t.Errorf("EffectiveDateTime = %q", obs.EffectiveDateTime)
	}
	if len(obs.Identifier) != 1 || obs.Identifier[0].Value != "row-991" || obs.Identifier[0].System != "urn:test:rows" {
		t.Errorf("identifier = %+v", obs.Identifier)
	}
}

func TestMapObservationEmptyOverridesFallBack(t *testing.T) {
	m := newTestMapper()

	// The view implements the override interfaces but returns empties.
	obs, err := m.MapObservation(&testObservation{typ: source.TypeFiO2, value: 30}, "p1")
	if err != nil {
		t.Fatalf("MapObservation failed: %v", err)
	}
	if obs.ValueQuantity.Unit != "%" {
		t.Errorf("Unit = %q, want table fallback", obs.ValueQuantity.Unit)
	}
	if obs.Code.Coding[0].Display != "FiO2" {
		t.Errorf("Display = %q, want table fallback", obs.Code.Coding[0].Display)
	}
	if obs.Code.Coding[0].Code != "19996-8" {
		t.Errorf("Code = %q, want table fallback", obs.Code.Coding[0].Code)
	}
}

func TestMapObservationUnsupportedType(t *testing.T) {
	m := newTestMapper()

	_, err := m.MapObservation(&testObservation{typ: "temperature", value: 37}, "p1")
	if !errors.Is(err, source.ErrUnsupportedObservationType) {
		t.Fatalf("expected ErrUnsupportedObservationType, got %v", err)
	}
}

func TestMapObservationDeterministic(t *testing.T) {
	m := newTestMapper()
	view := &testObservation{typ: source.TypePEEP, value: 5, at: "2126-01-18T09:30:00-05:00"}

	a, err := m.MapObservation(view, "p1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.MapObservation(view, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if *a.ValueQuantity != *b.ValueQuantity || a.EffectiveDateTime != b.EffectiveDateTime {
		t.Error("mapping the same view twice produced different resources")
	}
}

package source

import (
	"errors"
	"fmt"
	"strings"
)

// ObservationType identifies a supported kind of vital-sign or ventilator
// measurement.
type ObservationType string

// The measurement types this exporter understands. The set is open: a
// deployment can register further types through NewCodeTables as long as a
// complete code entry accompanies each one.
const (
	TypeFiO2       ObservationType = "fio2"   // fraction of inspired oxygen
	TypePIP        ObservationType = "pip"    // peak inspiratory pressure
	TypePEEP       ObservationType = "peep"   // positive end-expiratory pressure
	TypeHeartRate  ObservationType = "hr"     // heart rate
	TypeSaO2       ObservationType = "sao2"   // arterial oxygen saturation
	TypeBodyWeight ObservationType = "weight" // body weight
)

// ErrUnsupportedObservationType is returned when a lookup names a type the
// code tables have no entry for. Data sources filter such records out before
// mapping; seeing this error from a mapped record means the caller skipped
// that filter.
var ErrUnsupportedObservationType = errors.New("unsupported observation type")

// CodeEntry holds the three static facts attached to an observation type:
// how to code its unit, how to code the type itself, and how to label it
// for humans.
type CodeEntry struct {
	// UnitCode is the UCUM code for the measurement's unit.
	UnitCode string
	// Code is the coded form of the observation type, a LOINC code unless
	// System says otherwise.
	Code string
	// System is the coding system Code belongs to.
	System string
	// Display is the human-readable label of the observation type.
	Display string
}

// CodeTables is the immutable lookup from observation type to code entry.
// It is built once at startup, validated, and injected into the mapper;
// nothing mutates it afterwards, so the same type always resolves to the
// same three facts for the lifetime of the process.
type CodeTables struct {
	entries map[ObservationType]CodeEntry
}

// NewCodeTables builds code tables from the given entries and validates
// them. An incomplete entry is a configuration bug and fails construction.
func NewCodeTables(entries map[ObservationType]CodeEntry) (*CodeTables, error) {
	t := &CodeTables{entries: make(map[ObservationType]CodeEntry, len(entries))}
	for typ, e := range entries {
		t.entries[typ] = e
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// DefaultCodeTables returns the built-in tables covering every
// ObservationType constant. The LOINC codes follow loinc.org/search; the
// unit codes follow ucum.org.
func DefaultCodeTables() *CodeTables {
	tables, err := NewCodeTables(map[ObservationType]CodeEntry{
		TypeFiO2:       {UnitCode: "%", Code: "19996-8", System: "http://loinc.org", Display: "FiO2"},
		TypePIP:        {UnitCode: "cm[H2O]", Code: "60951-1", System: "http://loinc.org", Display: "PIP"},
		TypePEEP:       {UnitCode: "cm[H2O]", Code: "20077-4", System: "http://loinc.org", Display: "PEEP"},
		TypeHeartRate:  {UnitCode: "/min", Code: "8867-4", System: "http://loinc.org", Display: "Heart rate"},
		TypeSaO2:       {UnitCode: "%", Code: "59408-5", System: "http://loinc.org", Display: "SaO2"},
		TypeBodyWeight: {UnitCode: "kg", Code: "29463-7", System: "http://loinc.org", Display: "Body weight"},
	})
	if err != nil {
		// The built-in tables are checked by tests; reaching this is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return tables
}

// validate checks that every registered type carries a complete entry.
func (t *CodeTables) validate() error {
	var incomplete []string
	for typ, e := range t.entries {
		if e.UnitCode == "" || e.Code == "" || e.System == "" || e.Display == "" {
			incomplete = append(incomplete, string(typ))
		}
	}
	if len(incomplete) > 0 {
		return fmt.Errorf("incomplete code table entries for: %s", strings.Join(incomplete, ", "))
	}
	return nil
}

// Lookup resolves an observation type to its code entry.
func (t *CodeTables) Lookup(typ ObservationType) (CodeEntry, error) {
	e, ok := t.entries[typ]
	if !ok {
		return CodeEntry{}, fmt.Errorf("%w: %q", ErrUnsupportedObservationType, typ)
	}
	return e, nil
}

// Supported reports whether the tables carry an entry for typ.
func (t *CodeTables) Supported(typ ObservationType) bool {
	_, ok := t.entries[typ]
	return ok
}

// Types returns every registered observation type.
func (t *CodeTables) Types() []ObservationType {
	types := make([]ObservationType, 0, len(t.entries))
	for typ := range t.entries {
		types = append(types, typ)
	}
	return types
}

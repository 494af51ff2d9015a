package source

import (
	"errors"
	"testing"
)

func TestDefaultCodeTablesCoverEveryType(t *testing.T) {
	tables := DefaultCodeTables()

	all := []ObservationType{TypeFiO2, TypePIP, TypePEEP, TypeHeartRate, TypeSaO2, TypeBodyWeight}
	for _, typ := range all {
		entry, err := tables.Lookup(typ)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", typ, err)
		}
		if entry.UnitCode == "" || entry.Code == "" || entry.System == "" || entry.Display == "" {
			t.Errorf("entry for %q is incomplete: %+v", typ, entry)
		}
		if !tables.Supported(typ) {
			t.Errorf("Supported(%q) = false", typ)
		}
	}

	if got := len(tables.Types()); got != len(all) {
		t.Errorf("Types() returned %d types, want %d", got, len(all))
	}
}

func TestLookupUnsupportedType(t *testing.T) {
	tables := DefaultCodeTables()

	_, err := tables.Lookup("respiratory-rate")
	if !errors.Is(err, ErrUnsupportedObservationType) {
		t.Fatalf("expected ErrUnsupportedObservationType, got %v", err)
	}
	if tables.Supported("respiratory-rate") {
		t.Error("Supported returned true for an unregistered type")
	}
}

func TestNewCodeTablesRejectsIncompleteEntries(t *testing.T) {
	cases := []struct {
		name  string
		entry CodeEntry
	}{
		{"missing unit", CodeEntry{Code: "8867-4", System: "http://loinc.org", Display: "Heart rate"}},
		{"missing code", CodeEntry{UnitCode: "/min", System: "http://loinc.org", Display: "Heart rate"}},
		{"missing system", CodeEntry{UnitCode: "/min", Code: "8867-4", Display: "Heart rate"}},
		{"missing display", CodeEntry{UnitCode: "/min", Code: "8867-4", System: "http://loinc.org"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCodeTables(map[ObservationType]CodeEntry{TypeHeartRate: tc.entry})
			if err == nil {
				t.Fatal("expected an error for incomplete entry")
			}
		})
	}
}

func TestNewCodeTablesAcceptsExtensionTypes(t *testing.T) {
	tables, err := NewCodeTables(map[ObservationType]CodeEntry{
		"temperature": {UnitCode: "Cel", Code: "8310-5", System: "http://loinc.org", Display: "Body temperature"},
	})
	if err != nil {
		t.Fatalf("NewCodeTables failed: %v", err)
	}
	if !tables.Supported("temperature") {
		t.Error("registered extension type not supported")
	}
}

package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collectPatients(t *testing.T, seq source.Patients) []source.Patient {
	t.Helper()
	var out []source.Patient
	for {
		p, ok := seq.Next()
		if !ok {
			break
		}
		out = append(out, p)
	}
	if err := seq.Err(); err != nil {
		t.Fatalf("patients sequence failed: %v", err)
	}
	return out
}

func collectObservations(t *testing.T, seq source.Observations) []source.Observation {
	t.Helper()
	var out []source.Observation
	for {
		o, ok := seq.Next()
		if !ok {
			break
		}
		out = append(out, o)
	}
	if err := seq.Err(); err != nil {
		t.Fatalf("observations sequence failed: %v", err)
	}
	return out
}

func TestCSVSourceDeduplicatesPatients(t *testing.T) {
	path := writeCSV(t, `patient_id,name,type,value
p1,Mai Nguyen,hr,140
p1,Mai Nguyen,sao2,97
p2,Omar Harris,hr,151
`)
	src, err := New(Config{
		Path:        path,
		IDColumn:    "patient_id",
		NameColumn:  "name",
		TypeColumn:  "type",
		ValueColumn: "value",
	}, source.DefaultCodeTables(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	patients := collectPatients(t, src.Patients(context.Background()))
	if len(patients) != 2 {
		t.Fatalf("got %d patients, want 2", len(patients))
	}

	value, _ := source.Identifier(patients[0])
	if value != "p1" {
		t.Errorf("first patient id = %q", value)
	}

	obs := collectObservations(t, src.Observations(context.Background(), patients[0]))
	if len(obs) != 2 {
		t.Fatalf("p1 got %d observations, want 2", len(obs))
	}
	if obs[0].ObservationType() != source.TypeHeartRate || obs[0].Value() != 140 {
		t.Errorf("first observation = %v %v", obs[0].ObservationType(), obs[0].Value())
	}
}

func TestCSVSourceFiltersBadRows(t *testing.T) {
	path := writeCSV(t, `patient_id,type,value
p1,hr,140
p1,bloodtype,7
p1,hr,not-a-number
p2,sao2,95
`)
	src, err := New(Config{
		Path:        path,
		IDColumn:    "patient_id",
		TypeColumn:  "type",
		ValueColumn: "value",
	}, source.DefaultCodeTables(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	patients := collectPatients(t, src.Patients(context.Background()))
	if len(patients) != 2 {
		t.Fatalf("got %d patients, want 2", len(patients))
	}
	obs := collectObservations(t, src.Observations(context.Background(), patients[0]))
	if len(obs) != 1 {
		t.Fatalf("p1 got %d observations after filtering, want 1", len(obs))
	}
}

func TestCSVSourceDefaultType(t *testing.T) {
	path := writeCSV(t, `patient_id,value,taken_at
p1,3.2,2024-02-01T08:00:00-05:00
p1,3.4,2024-02-02T08:00:00-05:00
`)
	src, err := New(Config{
		Path:        path,
		IDColumn:    "patient_id",
		DefaultType: source.TypeBodyWeight,
		ValueColumn: "value",
		TimeColumn:  "taken_at",
	}, source.DefaultCodeTables(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	patients := collectPatients(t, src.Patients(context.Background()))
	obs := collectObservations(t, src.Observations(context.Background(), patients[0]))
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	if obs[0].ObservationType() != source.TypeBodyWeight {
		t.Errorf("type = %q, want weight", obs[0].ObservationType())
	}
	timed, ok := obs[0].(source.EffectiveTimeProvider)
	if !ok || timed.EffectiveTime() != "2024-02-01T08:00:00-05:00" {
		t.Errorf("effective time not carried through")
	}
}

func TestCSVSourceNameSplitting(t *testing.T) {
	path := writeCSV(t, `patient_id,name,type,value
p1,Ana Maria Lopez,hr,120
p2,Cher,hr,118
`)
	src, err := New(Config{
		Path:        path,
		IDColumn:    "patient_id",
		NameColumn:  "name",
		TypeColumn:  "type",
		ValueColumn: "value",
	}, source.DefaultCodeTables(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	patients := collectPatients(t, src.Patients(context.Background()))

	named := patients[0].(source.NameProvider)
	family, given := named.Name()
	if family != "Lopez" || given != "Ana Maria" {
		t.Errorf("Name() = (%q, %q)", family, given)
	}

	// A single-token name is no name; the mapper will generate one.
	named = patients[1].(source.NameProvider)
	family, given = named.Name()
	if family != "" || given != "" {
		t.Errorf("single-token Name() = (%q, %q), want empty pair", family, given)
	}
}

func TestCSVSourceConfigValidation(t *testing.T) {
	path := writeCSV(t, "patient_id,value\np1,1\n")

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing id column", Config{Path: path, ValueColumn: "value", DefaultType: source.TypeBodyWeight}},
		{"missing value column", Config{Path: path, IDColumn: "patient_id", DefaultType: source.TypeBodyWeight}},
		{"no type source", Config{Path: path, IDColumn: "patient_id", ValueColumn: "value"}},
		{"unknown column", Config{Path: path, IDColumn: "missing", ValueColumn: "value", DefaultType: source.TypeBodyWeight}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg, source.DefaultCodeTables(), nil); err == nil {
				t.Fatal("expected a configuration error")
			}
		})
	}
}

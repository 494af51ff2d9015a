package r4

import (
	"encoding/json"
	"testing"
)

func TestNewTransactionBundle(t *testing.T) {
	obs := &Observation{
		ResourceType: "Observation",
		Status:       ObservationStatusFinal,
		Subject:      &Reference{Reference: "Patient/1"},
	}
	patient := &Patient{ResourceType: "Patient", Gender: "female"}

	bundle, err := NewTransactionBundle(patient, obs)
	if err != nil {
		t.Fatalf("NewTransactionBundle failed: %v", err)
	}

	if bundle.ResourceType != "Bundle" || bundle.Type != "transaction" {
		t.Errorf("bundle header = %s/%s", bundle.ResourceType, bundle.Type)
	}
	if len(bundle.Entry) != 2 {
		t.Fatalf("got %d entries, want 2", len(bundle.Entry))
	}

	wantURLs := []string{"Patient", "Observation"}
	for i, entry := range bundle.Entry {
		if entry.Request == nil {
			t.Fatalf("entry %d has no request", i)
		}
		if entry.Request.Method != "POST" {
			t.Errorf("entry %d method = %q", i, entry.Request.Method)
		}
		if entry.Request.URL != wantURLs[i] {
			t.Errorf("entry %d url = %q, want %q", i, entry.Request.URL, wantURLs[i])
		}
		if len(entry.Resource) == 0 {
			t.Errorf("entry %d carries no resource", i)
		}
	}

	// The embedded resource must round-trip as the original type.
	var decoded Observation
	if err := json.Unmarshal(bundle.Entry[1].Resource, &decoded); err != nil {
		t.Fatalf("decode embedded observation: %v", err)
	}
	if decoded.Subject == nil || decoded.Subject.Reference != "Patient/1" {
		t.Errorf("embedded observation subject = %+v", decoded.Subject)
	}
}

func TestNewTransactionBundleEmpty(t *testing.T) {
	bundle, err := NewTransactionBundle()
	if err != nil {
		t.Fatalf("NewTransactionBundle failed: %v", err)
	}
	if len(bundle.Entry) != 0 {
		t.Errorf("got %d entries, want 0", len(bundle.Entry))
	}
}

package uploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
)

func TestCreateResourceReturnsServerID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Patient" {
			t.Errorf("path = %q, want /Patient", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/fhir+json" {
			t.Errorf("content type = %q", ct)
		}
		w.Write([]byte(`{"resourceType":"Patient","id":"srv-17"}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	id, err := c.CreateResource(context.Background(), &fhir.Patient{ResourceType: "Patient"})
	if err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	if id != "srv-17" {
		t.Errorf("id = %q", id)
	}
}

func TestCreateResourceRejectsMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"Patient"}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.CreateResource(context.Background(), &fhir.Patient{ResourceType: "Patient"}); err == nil {
		t.Fatal("expected an error when the server assigns no id")
	}
}

func TestPostErrorsCarryServerBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"resourceType":"OperationOutcome","issue":[{"severity":"error"}]}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.CreateResource(context.Background(), &fhir.Patient{ResourceType: "Patient"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "OperationOutcome") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

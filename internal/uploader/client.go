// Package uploader pushes mapped resources to the destination FHIR server:
// one Patient create per patient, then one transaction Bundle per patient
// carrying all of that patient's Observations.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/pkg/circuitbreaker"
)

const mimeFHIRJSON = "application/fhir+json"

// Client is a minimal FHIR REST client covering the two calls the
// populate pipeline needs. All requests run through a circuit breaker so a
// down server fails the run fast instead of timing out patient by patient.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewClient creates a client for the FHIR server at baseURL (no trailing
// slash).
func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("fhir-server"), logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer("fhir-client"),
	}, nil
}

// CreateResource POSTs a single resource to its type endpoint and returns
// the id the server assigned to it.
func (c *Client) CreateResource(ctx context.Context, res fhir.Resource) (string, error) {
	ctx, span := c.tracer.Start(ctx, "fhir_create_resource",
		trace.WithAttributes(attribute.String("resource_type", res.RelativeURL())))
	defer span.End()

	body, err := c.post(ctx, c.baseURL+"/"+res.RelativeURL(), res)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("server returned no id for created %s", res.RelativeURL())
	}
	return created.ID, nil
}

// PostTransactionBundle submits a transaction bundle to the server base
// URL and returns the response bundle. The server processes the entries
// atomically and must answer with exactly one entry per submitted
// resource; the caller checks that count.
func (c *Client) PostTransactionBundle(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error) {
	ctx, span := c.tracer.Start(ctx, "fhir_post_transaction_bundle",
		trace.WithAttributes(attribute.Int("entries", len(bundle.Entry))))
	defer span.End()

	body, err := c.post(ctx, c.baseURL, bundle)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var response fhir.Bundle
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode transaction response: %w", err)
	}
	return &response, nil
}

// post marshals payload, sends it through the breaker, and returns the
// response body. Non-2xx answers become errors carrying the server's
// response body.
func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", mimeFHIRJSON)
		req.Header.Set("Accept", mimeFHIRJSON)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

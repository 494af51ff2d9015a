package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	fhir "github.com/stephencrowell/lungair-fhir-server/internal/fhir/r4"
	"github.com/stephencrowell/lungair-fhir-server/internal/observability/metrics"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
)

// Publisher emits audit events about upload outcomes. The redpanda producer
// satisfies this; a nil Publisher disables auditing.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// auditEvent is the payload published per uploaded patient.
type auditEvent struct {
	PatientID    string `json:"patient_id"`
	SourceID     string `json:"source_id,omitempty"`
	Observations int    `json:"observations"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	PatientsCreated      int
	PatientsFailed       int
	ObservationsUploaded int
	RecordsSkipped       int
}

// Populator drives the upload: enumerate patients, map and create each one,
// then push its observations as a single transaction bundle. Patients are
// processed strictly one at a time; a failure on one patient is logged and
// the run moves on, while enumeration and setup failures abort the run.
type Populator struct {
	src     source.DataSource
	mapper  PatientMapper
	client  *Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	audit   Publisher
	tracer  trace.Tracer
}

// PatientMapper is the mapping surface the pipeline needs. Satisfied by
// mapper.Mapper.
type PatientMapper interface {
	MapPatient(p source.Patient) *fhir.Patient
	MapObservation(o source.Observation, subjectID string) (*fhir.Observation, error)
}

// NewPopulator wires a pipeline. metrics and audit may be nil.
func NewPopulator(src source.DataSource, m PatientMapper, client *Client, logger *zap.Logger, mx *metrics.Metrics, audit Publisher) *Populator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Populator{
		src:     src,
		mapper:  m,
		client:  client,
		logger:  logger,
		metrics: mx,
		audit:   audit,
		tracer:  otel.Tracer("populator"),
	}
}

// Run uploads every patient the source enumerates. It returns the run
// totals and the first fatal error: context cancellation, an enumeration
// failure, or a server answer that violates the transaction contract.
func (p *Populator) Run(ctx context.Context) (RunStats, error) {
	var stats RunStats
	started := time.Now()

	patients := p.src.Patients(ctx)
	for {
		view, ok := patients.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := p.uploadPatient(ctx, view, &stats); err != nil {
			var mismatch *BundleMismatchError
			if errors.As(err, &mismatch) {
				// The server broke transaction semantics; nothing
				// downstream can be trusted.
				return stats, err
			}
			stats.PatientsFailed++
			if p.metrics != nil {
				p.metrics.PatientsFailed.Inc()
			}
			p.logger.Error("patient upload failed, continuing",
				zap.Error(err))
		}
	}
	if err := patients.Err(); err != nil {
		return stats, fmt.Errorf("enumerate patients: %w", err)
	}

	p.logger.Info("populate run finished",
		zap.Int("patients_created", stats.PatientsCreated),
		zap.Int("patients_failed", stats.PatientsFailed),
		zap.Int("observations_uploaded", stats.ObservationsUploaded),
		zap.Int("records_skipped", stats.RecordsSkipped),
		zap.Duration("elapsed", time.Since(started)))
	return stats, nil
}

// BundleMismatchError reports a transaction response whose entry count does
// not match the submitted bundle. This is a server fault and aborts the run.
type BundleMismatchError struct {
	Submitted int
	Returned  int
}

func (e *BundleMismatchError) Error() string {
	return fmt.Sprintf("transaction bundle returned %d entries for %d resources", e.Returned, e.Submitted)
}

// uploadPatient creates one patient and posts its observations.
func (p *Populator) uploadPatient(ctx context.Context, view source.Patient, stats *RunStats) error {
	sourceID, _ := source.Identifier(view)
	ctx, span := p.tracer.Start(ctx, "upload_patient",
		trace.WithAttributes(attribute.String("source_id", sourceID)))
	defer span.End()

	resource := p.mapper.MapPatient(view)
	patientID, err := p.client.CreateResource(ctx, resource)
	if err != nil {
		span.RecordError(err)
		p.publishAudit(ctx, "", sourceID, 0, "failed", err)
		return fmt.Errorf("create patient: %w", err)
	}
	stats.PatientsCreated++
	if p.metrics != nil {
		p.metrics.PatientsCreated.Inc()
	}

	uploaded, err := p.uploadObservations(ctx, view, patientID, stats)
	if err != nil {
		span.RecordError(err)
		p.publishAudit(ctx, patientID, sourceID, uploaded, "failed", err)
		return err
	}

	p.logger.Info("patient uploaded",
		zap.String("patient_id", patientID),
		zap.String("source_id", sourceID),
		zap.Int("observations", uploaded))
	p.publishAudit(ctx, patientID, sourceID, uploaded, "uploaded", nil)
	return nil
}

// uploadObservations maps one patient's observations and posts them as a
// transaction bundle. Returns how many the server accepted.
func (p *Populator) uploadObservations(ctx context.Context, view source.Patient, patientID string, stats *RunStats) (int, error) {
	observations := p.src.Observations(ctx, view)

	var resources []fhir.Resource
	for {
		obs, ok := observations.Next()
		if !ok {
			break
		}
		mapped, err := p.mapper.MapObservation(obs, patientID)
		if err != nil {
			// Sources filter unsupported types up front, so this is
			// rare; skip the record rather than losing the patient.
			stats.RecordsSkipped++
			if p.metrics != nil {
				p.metrics.RecordsSkipped.Inc()
			}
			p.logger.Warn("skipping observation",
				zap.String("patient_id", patientID),
				zap.Error(err))
			continue
		}
		resources = append(resources, mapped)
	}
	if err := observations.Err(); err != nil {
		return 0, fmt.Errorf("enumerate observations: %w", err)
	}
	if len(resources) == 0 {
		return 0, nil
	}

	bundle, err := fhir.NewTransactionBundle(resources...)
	if err != nil {
		return 0, fmt.Errorf("build transaction bundle: %w", err)
	}

	postStart := time.Now()
	response, err := p.client.PostTransactionBundle(ctx, bundle)
	if err != nil {
		return 0, fmt.Errorf("post transaction bundle: %w", err)
	}
	if p.metrics != nil {
		p.metrics.BundlePostDuration.Observe(time.Since(postStart).Seconds())
	}

	if len(response.Entry) != len(resources) {
		return 0, &BundleMismatchError{Submitted: len(resources), Returned: len(response.Entry)}
	}

	stats.ObservationsUploaded += len(resources)
	if p.metrics != nil {
		p.metrics.ObservationsUploaded.Add(float64(len(resources)))
	}
	return len(resources), nil
}

// publishAudit emits one audit event. Audit failures never fail the upload.
func (p *Populator) publishAudit(ctx context.Context, patientID, sourceID string, observations int, outcome string, cause error) {
	if p.audit == nil {
		return
	}
	event := auditEvent{
		PatientID:    patientID,
		SourceID:     sourceID,
		Observations: observations,
		Outcome:      outcome,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal audit event", zap.Error(err))
		return
	}
	key := patientID
	if key == "" {
		key = sourceID
	}
	if err := p.audit.Publish(ctx, key, payload); err != nil {
		p.logger.Warn("publish audit event", zap.Error(err))
		return
	}
	if p.metrics != nil {
		p.metrics.AuditEventsPublished.Inc()
	}
}

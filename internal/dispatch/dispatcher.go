// Package dispatch persists finished prescriptions and shares them over the
// supported channels.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/activity"
	"github.com/automedic/clinic/internal/backend"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/observability/metrics"
	"github.com/automedic/clinic/internal/session"
	"github.com/automedic/clinic/pkg/workerpool"
)

var (
	// ErrMissingPatient is returned when a submission names no patient.
	ErrMissingPatient = errors.New("patient id is required")
	// ErrMissingPrescription is returned for an empty prescription id.
	ErrMissingPrescription = errors.New("prescription id is required")
	// ErrNoMethods is returned by ShareAll when no channel is requested.
	ErrNoMethods = errors.New("at least one share method is required")
)

// Backend is the remote API surface the dispatcher needs.
type Backend interface {
	CreatePrescription(ctx context.Context, sess session.Session, sub prescription.Submission) (string, error)
	SendPrescription(ctx context.Context, sess session.Session, prescriptionID, method string) error
	PrescriptionDetail(ctx context.Context, sess session.Session, id string) backend.PrescriptionDetail
}

// ShareResult is the outcome of one share attempt.
type ShareResult struct {
	PrescriptionID string `json:"prescriptionId"`
	Method         Method `json:"method"`
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Err            error  `json:"-"`
}

func sentMessage(m Method) string   { return fmt.Sprintf("Prescription sent successfully via %s!", m) }
func failedMessage(m Method) string { return fmt.Sprintf("Failed to send via %s", m) }

type shareJob struct {
	sess           session.Session
	prescriptionID string
	method         Method
}

// Dispatcher submits prescriptions and fans share requests out over a worker pool.
// It keeps no per-prescription state.
type Dispatcher struct {
	backend  Backend
	recorder activity.Recorder
	pool     *workerpool.Pool
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a dispatcher. recorder and m may be nil.
func New(b Backend, recorder activity.Recorder, cfg workerpool.Config, m *metrics.Metrics, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = activity.Nop{}
	}

	d := &Dispatcher{
		backend:  b,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("dispatch"),
	}

	pool, err := workerpool.New(cfg, d.runShare, logger.Named("share-pool"))
	if err != nil {
		return nil, fmt.Errorf("create share pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Start starts the share workers.
func (d *Dispatcher) Start() { d.pool.Start() }

// Close drains queued shares and stops the workers.
func (d *Dispatcher) Close() error { return d.pool.Stop() }

// Stats reports the share pool counters.
func (d *Dispatcher) Stats() workerpool.Stats { return d.pool.Stats() }

// Healthy reports whether the share pool accepts work.
func (d *Dispatcher) Healthy() bool { return d.pool.IsHealthy() }

// Submit persists p for patientID with exactly one backend call. The doctor
// id comes from sess only.
func (d *Dispatcher) Submit(ctx context.Context, sess session.Session, patientID string, p *prescription.Prescription) (string, error) {
	if err := session.Require(sess); err != nil {
		return "", err
	}
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return "", ErrMissingPatient
	}
	if p == nil {
		return "", errors.New("prescription is required")
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.submit",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	id, err := d.backend.CreatePrescription(ctx, sess, prescription.NewSubmission(sess, patientID, p))
	if err != nil {
		span.RecordError(err)
		d.metrics.SubmissionFailed(failureReason(err))
		d.logger.Error("prescription submission failed",
			zap.String("doctor_id", sess.DoctorID),
			zap.String("patient_id", patientID),
			zap.Error(err))
		return "", err
	}

	d.metrics.Submitted()
	d.logger.Info("prescription submitted",
		zap.String("prescription_id", id),
		zap.String("doctor_id", sess.DoctorID))

	e := activity.NewEvent(activity.TypePrescriptionSubmitted, sess.DoctorID)
	e.PatientID = patientID
	e.PrescriptionID = id
	activity.Emit(ctx, d.recorder, e, d.logger)

	return id, nil
}

func failureReason(err error) string {
	var serr *backend.StatusError
	switch {
	case errors.As(err, &serr):
		return "status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "transport"
}

// Share sends prescriptionID over one channel. A returned error means the
// request was rejected before any call; a failed send is reported in the result.
func (d *Dispatcher) Share(ctx context.Context, sess session.Session, prescriptionID, method string) (ShareResult, error) {
	if err := session.Require(sess); err != nil {
		return ShareResult{}, err
	}
	m, err := ParseMethod(method)
	if err != nil {
		return ShareResult{}, err
	}
	if strings.TrimSpace(prescriptionID) == "" {
		return ShareResult{}, ErrMissingPrescription
	}
	return d.share(ctx, shareJob{sess: sess, prescriptionID: prescriptionID, method: m}), nil
}

// ShareAll shares prescriptionID over each distinct channel as independent
// dispatches and returns one result per channel in request order.
func (d *Dispatcher) ShareAll(ctx context.Context, sess session.Session, prescriptionID string, methods []string) ([]ShareResult, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prescriptionID) == "" {
		return nil, ErrMissingPrescription
	}

	var parsed []Method
	seen := make(map[Method]bool)
	for _, raw := range methods {
		m, err := ParseMethod(raw)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			parsed = append(parsed, m)
		}
	}
	if len(parsed) == 0 {
		return nil, ErrNoMethods
	}

	tasks := make([]*workerpool.Task, len(parsed))
	results := make([]ShareResult, len(parsed))
	for i, m := range parsed {
		job := shareJob{sess: sess, prescriptionID: prescriptionID, method: m}
		task := workerpool.NewTask(ctx, prescriptionID+"/"+string(m), job)
		switch err := d.pool.Submit(task); {
		case errors.Is(err, workerpool.ErrQueueFull):
			results[i] = d.share(ctx, job)
		case err != nil:
			results[i] = failedResult(job, err)
		default:
			tasks[i] = task
		}
	}

	for i, task := range tasks {
		if task == nil {
			continue
		}
		res, err := task.Wait(ctx)
		if err != nil {
			results[i] = failedResult(task.Payload.(shareJob), err)
			continue
		}
		if sr, ok := res.Data.(ShareResult); ok {
			results[i] = sr
		} else {
			results[i] = failedResult(task.Payload.(shareJob), res.Error)
		}
	}
	return results, nil
}

func (d *Dispatcher) runShare(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	job, ok := task.Payload.(shareJob)
	if !ok {
		return &workerpool.Result{Error: fmt.Errorf("unexpected payload %T", task.Payload)}
	}
	res := d.share(ctx, job)
	return &workerpool.Result{Success: res.Success, Error: res.Err, Data: res}
}

func failedResult(job shareJob, err error) ShareResult {
	return ShareResult{
		PrescriptionID: job.prescriptionID,
		Method:         job.method,
		Message:        failedMessage(job.method),
		Err:            err,
	}
}

func (d *Dispatcher) share(ctx context.Context, job shareJob) ShareResult {
	ctx, span := d.tracer.Start(ctx, "dispatch.share",
		trace.WithAttributes(
			attribute.String("prescription_id", job.prescriptionID),
			attribute.String("method", string(job.method)),
		))
	defer span.End()

	err := d.backend.SendPrescription(ctx, job.sess, job.prescriptionID, string(job.method))
	d.metrics.Shared(string(job.method), err == nil)

	e := activity.NewEvent(activity.TypePrescriptionShared, job.sess.DoctorID)
	e.PrescriptionID = job.prescriptionID
	e.Method = string(job.method)

	if err != nil {
		span.RecordError(err)
		d.logger.Warn("share failed",
			zap.String("prescription_id", job.prescriptionID),
			zap.String("method", string(job.method)),
			zap.Error(err))
		e.Type = activity.TypeShareFailed
		e.Detail = err.Error()
		activity.Emit(ctx, d.recorder, e, d.logger)
		return failedResult(job, err)
	}

	activity.Emit(ctx, d.recorder, e, d.logger)
	return ShareResult{
		PrescriptionID: job.prescriptionID,
		Method:         job.method,
		Success:        true,
		Message:        sentMessage(job.method),
	}
}

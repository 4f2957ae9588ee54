package usecases

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/etl"
	"sensor-ingest/metric"
	"sensor-ingest/services"
	"sensor-ingest/validation"
)

// Action is the broker acknowledgement for one delivery.
type Action int

const (
	Ack Action = iota
	// Reject drops the message without redelivery.
	Reject
	Requeue
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	}
	return "unknown"
}

// Drop reasons reported in Outcome.Reason besides the validator's own.
const (
	ReasonPoison            = "poison"
	ReasonUnknownKind       = "unknown_sensor_kind"
	ReasonTransformRejected = "transform_rejected"
	ReasonDurableInvalid    = "durable_write_invalid"
	ReasonDurableTransient  = "durable_write_transient"
	ReasonCachePartial      = "cache_write_failed"
)

type Outcome struct {
	Action    Action
	Kind      entities.SensorKind
	MessageID string
	// Reason is empty for a fully successful delivery.
	Reason string
	Err    error
	Result *services.PersistResult
}

type RecordPersister interface {
	Persist(ctx context.Context, rec *entities.CanonicalRecord) services.PersistResult
}

type IngestUseCase struct {
	validator   *validation.Validator
	transformer *etl.Transformer
	persister   RecordPersister
	metrics     *metric.Collector
	log         *slog.Logger
}

func NewIngestUseCase(validator *validation.Validator, transformer *etl.Transformer, persister RecordPersister, metrics *metric.Collector, log *slog.Logger) *IngestUseCase {
	return &IngestUseCase{
		validator:   validator,
		transformer: transformer,
		persister:   persister,
		metrics:     metrics,
		log:         log.With("component", "ingest"),
	}
}

// Handle runs one message body through decode, validation, transformation
// and persistence and decides how the broker should acknowledge it.
// queueKind is the kind of the queue the message arrived on; the envelope's
// own sensor_type takes precedence when present.
func (uc *IngestUseCase) Handle(ctx context.Context, queueKind entities.SensorKind, body []byte) Outcome {
	env, err := entities.DecodeEnvelope(body)
	if err != nil {
		uc.metrics.RecordPoison(string(queueKind))
		uc.log.Warn("poison message dropped", "queue_kind", queueKind, "error", err)
		return Outcome{Action: Reject, Kind: queueKind, Reason: ReasonPoison, Err: err}
	}

	msgID := env.MessageID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	out := Outcome{Kind: queueKind, MessageID: msgID}

	kindName := env.SensorType
	if kindName == "" {
		kindName = string(queueKind)
	}
	kind, err := entities.ParseSensorKind(kindName)
	if err != nil {
		uc.metrics.RecordValidation(string(queueKind), ReasonUnknownKind)
		uc.log.Warn("unknown sensor kind", "message_id", msgID, "sensor_type", env.SensorType)
		out.Reason, out.Err = ReasonUnknownKind, errs.Invalid("handle", err)
		return out
	}
	out.Kind = kind

	reading, res := uc.validator.Validate(entities.NewReading(kind, env.Data))
	if !res.Accepted {
		out.Reason, out.Err = res.Reason, res.Err()
		return out
	}

	rec, err := uc.transformer.Transform(reading)
	if err != nil {
		uc.metrics.RecordDropped(string(kind), ReasonTransformRejected)
		uc.log.Info("record rejected by transformer", "message_id", msgID, "kind", kind, "error", err)
		out.Reason, out.Err = ReasonTransformRejected, err
		return out
	}

	pr := uc.persister.Persist(ctx, rec)
	out.Result = &pr
	switch {
	case pr.DurableErr != nil && errs.IsInvalid(pr.DurableErr):
		out.Reason, out.Err = ReasonDurableInvalid, pr.DurableErr
	case pr.DurableErr != nil:
		out.Action, out.Reason, out.Err = Requeue, ReasonDurableTransient, pr.DurableErr
	case pr.CacheErr != nil:
		out.Reason, out.Err = ReasonCachePartial, pr.CacheErr
	}
	return out
}

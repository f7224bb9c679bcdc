package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/pkg/jobs"
)

// eventEmitter dispatches domain events after a state transition has committed.
type eventEmitter interface {
	Emit(ctx context.Context, eventType models.EventType, payload map[string]string)
}

// EventSink delivers a domain event to the notification collaborator.
type EventSink interface {
	Publish(ctx context.Context, event models.Event) error
}

// LogSink writes events to the logger when no broker is configured.
type LogSink struct {
	Logger *zap.Logger
}

// Publish implements EventSink.
func (s LogSink) Publish(_ context.Context, event models.Event) error {
	if s.Logger != nil {
		s.Logger.Info("domain event", zap.String("type", string(event.Type)), zap.String("id", event.ID), zap.Any("payload", event.Payload))
	}
	return nil
}

// NotificationConfig tunes the dispatch worker pool.
type NotificationConfig struct {
	Enabled bool
	Workers int
	Buffer  int
}

// NotificationService forwards events to the notification collaborator from a worker queue.
// Delivery failures are logged and dropped.
type NotificationService struct {
	sink    EventSink
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
	now     func() time.Time
}

// NewNotificationService wires the queue; call Start before emitting.
func NewNotificationService(sink EventSink, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	svc := &NotificationService{sink: sink, logger: logger, enabled: cfg.Enabled, now: time.Now}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.Buffer,
		Logger:     logger,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains workers.
func (s *NotificationService) Stop() {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Stop()
}

// Emit enqueues an event. It never fails the caller.
func (s *NotificationService) Emit(_ context.Context, eventType models.EventType, payload map[string]string) {
	if s == nil || !s.enabled {
		return
	}
	event := models.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: event.ID, Type: string(eventType), Payload: event}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		s.logger.Warn("dropping malformed notification job", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("notification delivery failed", zap.String("type", string(event.Type)), zap.String("id", event.ID), zap.Error(err))
	}
	return nil
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, models.EventType, map[string]string) {}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/provider/resilience"
	"github.com/tripboard/tripboard/internal/timeline"
)

// Job types carried in RefreshMessage.JobType.
const (
	JobTimelineRefresh = "timeline_refresh"
	JobStopsChanged    = "stops_changed"
	JobHealthCheck     = "health_check"
)

// ErrUnknownJob is returned by HandleJob for unrecognised job types.
var ErrUnknownJob = errors.New("unknown job type")

// Reloader re-reads persisted state.
type Reloader interface {
	Reload(ctx context.Context) error
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobHandler
	Logger           zerolog.Logger
}

// RefreshMessage represents a worker job message.
type RefreshMessage struct {
	JobType    string `json:"job_type"`
	RefreshAll bool   `json:"refresh_all,omitempty"`

	// Timeline limits a timeline_refresh to one cache key.
	Timeline string `json:"timeline,omitempty"`
}

// JobHandler executes job messages independently of their transport.
type JobHandler struct {
	refreshJob *RefreshJob
	service    *timeline.Service
	stops      Reloader
	registry   *resilience.Registry
	collector  *Collector
	logger     zerolog.Logger
}

// JobHandlerConfig holds configuration for a JobHandler.
type JobHandlerConfig struct {
	RefreshJob *RefreshJob
	Service    *timeline.Service

	// Stops and Registry are optional.
	Stops     Reloader
	Registry  *resilience.Registry
	Collector *Collector
	Logger    zerolog.Logger
}

// NewJobHandler creates a job handler.
func NewJobHandler(cfg JobHandlerConfig) *JobHandler {
	return &JobHandler{
		refreshJob: cfg.RefreshJob,
		service:    cfg.Service,
		stops:      cfg.Stops,
		registry:   cfg.Registry,
		collector:  cfg.Collector,
		logger:     cfg.Logger,
	}
}

// HandleJob runs the job described by msg.
func (h *JobHandler) HandleJob(ctx context.Context, msg RefreshMessage) error {
	var err error
	switch msg.JobType {
	case JobTimelineRefresh:
		err = h.handleTimelineRefresh(ctx, msg)
	case JobStopsChanged:
		err = h.handleStopsChanged(ctx)
	case JobHealthCheck:
		err = h.handleHealthCheck()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}

	if h.collector != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		h.collector.PubSubMessages.WithLabelValues(msg.JobType, outcome).Inc()
	}
	return err
}

func (h *JobHandler) handleTimelineRefresh(ctx context.Context, msg RefreshMessage) error {
	if msg.Timeline != "" {
		h.service.Invalidate(msg.Timeline)
		result := h.refreshJob.RunDue(ctx)
		h.logger.Info().Str("timeline", msg.Timeline).Int("built", result.Built).Msg("timeline refreshed on request")
		return nil
	}

	var result *RefreshResult
	if msg.RefreshAll {
		result = h.refreshJob.Run(ctx)
	} else {
		result = h.refreshJob.RunDue(ctx)
	}

	if result.Built > 0 && result.Failed == result.Built {
		return fmt.Errorf("all %d timeline builds failed", result.Failed)
	}
	return nil
}

func (h *JobHandler) handleStopsChanged(ctx context.Context) error {
	if h.stops != nil {
		if err := h.stops.Reload(ctx); err != nil {
			return fmt.Errorf("reloading stops: %w", err)
		}
	}
	h.service.InvalidateAll()
	h.refreshJob.RunDue(ctx)
	return nil
}

func (h *JobHandler) handleHealthCheck() error {
	if h.registry == nil || h.registry.Healthy() {
		return nil
	}
	return errors.New("upstream provider failing")
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var jobMsg RefreshMessage
	if err := json.Unmarshal(msg.Data, &jobMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	err := h.jobs.HandleJob(ctx, jobMsg)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", jobMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	case err != nil:
		logger.Error().Err(err).Str("job_type", jobMsg.JobType).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Str("job_type", jobMsg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

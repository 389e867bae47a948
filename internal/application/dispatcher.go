package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultDeliveryTimeout = 10 * time.Second

// Notification is a message for one user about one pickup request.
type Notification struct {
	OrganizationID string
	UserID         string
	RequestID      string
	Kind           EventKind
	Message        string
}

// Notifier delivers notifications through an external channel such as email or WhatsApp.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// AnalyticsEvent is a product analytics record.
type AnalyticsEvent struct {
	OrganizationID string
	Name           string
	UserID         string
	Properties     map[string]any
	OccurredAt     time.Time
}

// AnalyticsSink receives analytics events.
type AnalyticsSink interface {
	Track(ctx context.Context, event AnalyticsEvent) error
}

// Dispatcher delivers notifications and analytics in the background.
// Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	notifier  Notifier
	analytics AnalyticsSink
	timeout   time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher wires delivery backends. Nil backends fall back to structured log output.
func NewDispatcher(notifier Notifier, analytics AnalyticsSink, logger *slog.Logger) *Dispatcher {
	logger = defaultLogger(logger)
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if analytics == nil {
		analytics = LogAnalyticsSink{Logger: logger}
	}
	return &Dispatcher{
		notifier:  notifier,
		analytics: analytics,
		timeout:   defaultDeliveryTimeout,
		logger:    logger,
	}
}

// Notify schedules delivery of notification.
func (d *Dispatcher) Notify(ctx context.Context, notification Notification) {
	if d == nil || notification.UserID == "" {
		return
	}
	d.run(ctx, func(ctx context.Context) {
		if err := d.notifier.Notify(ctx, notification); err != nil {
			d.logger.Warn("notification delivery failed",
				"organization_id", notification.OrganizationID,
				"user_id", notification.UserID,
				"request_id", notification.RequestID,
				"kind", string(notification.Kind),
				"error", err,
			)
		}
	})
}

// Track schedules delivery of an analytics event.
func (d *Dispatcher) Track(ctx context.Context, event AnalyticsEvent) {
	if d == nil {
		return
	}
	d.run(ctx, func(ctx context.Context) {
		if err := d.analytics.Track(ctx, event); err != nil {
			d.logger.Warn("analytics delivery failed",
				"organization_id", event.OrganizationID,
				"event", event.Name,
				"error", err,
			)
		}
	})
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, deliver func(ctx context.Context)) {
	// The request context ends with the response; deliveries outlive it.
	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		deliver(ctx)
	}()
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, notification Notification) error {
	defaultLogger(n.Logger).InfoContext(ctx, "notification",
		"organization_id", notification.OrganizationID,
		"user_id", notification.UserID,
		"request_id", notification.RequestID,
		"kind", string(notification.Kind),
		"message", notification.Message,
	)
	return nil
}

// LogAnalyticsSink writes analytics events to a structured logger.
type LogAnalyticsSink struct {
	Logger *slog.Logger
}

// Track implements AnalyticsSink.
func (s LogAnalyticsSink) Track(ctx context.Context, event AnalyticsEvent) error {
	attrs := []any{
		"organization_id", event.OrganizationID,
		"event", event.Name,
		"user_id", event.UserID,
		"occurred_at", event.OccurredAt,
	}
	for key, value := range event.Properties {
		attrs = append(attrs, key, value)
	}
	defaultLogger(s.Logger).InfoContext(ctx, "analytics", attrs...)
	return nil
}

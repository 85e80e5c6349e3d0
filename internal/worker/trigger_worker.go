package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
)

// HandlerRegistrar is implemented by services that react to triggers.
type HandlerRegistrar interface {
	RegisterHandlers(d events.Dispatcher)
}

// observedDispatcher wraps each subscribed handler with logging, metrics and panic
// recovery. A returned error still propagates so the transport can redeliver.
type observedDispatcher struct {
	events.Dispatcher
	logger  *zap.Logger
	metrics *observability.Metrics
}

func (d observedDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.Dispatcher.Subscribe(eventType, func(ctx context.Context, event events.Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("trigger handler panicked",
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = fmt.Errorf("handler panic: %v", r)
			}
			result := "ok"
			if err != nil {
				result = "error"
				d.logger.Error("trigger handler failed",
					zap.String("event_id", event.ID),
					zap.String("event_type", string(event.Type)),
					zap.String("subject", event.Subject),
					zap.Error(err))
			}
			d.metrics.RecordTrigger(string(event.Type), result)
		}()
		return handler(ctx, event)
	})
}

// StartTriggerWorker registers every reactive handler on the dispatcher.
func StartTriggerWorker(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, registrars ...HandlerRegistrar) {
	if dispatcher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	observed := observedDispatcher{Dispatcher: dispatcher, logger: logger, metrics: metrics}
	for _, r := range registrars {
		if r != nil {
			r.RegisterHandlers(observed)
		}
	}
}

// Consumer is a transport that pulls triggers until cancelled.
type Consumer interface {
	Run(ctx context.Context) error
}

// RunConsumer drives a consumer in the background and reports its exit on the
// returned channel.
func RunConsumer(ctx context.Context, consumer Consumer, logger *zap.Logger) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := consumer.Run(ctx)
		if err != nil {
			logger.Error("trigger consumer stopped", zap.Error(err))
		} else {
			logger.Info("trigger consumer stopped")
		}
		done <- err
	}()
	return done
}

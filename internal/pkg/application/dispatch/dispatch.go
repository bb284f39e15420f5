package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/transit-publisher/internal/pkg/application/pipeline"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotStarted = fmt.Errorf("dispatcher not started")
var ErrQueueFull = fmt.Errorf("too many queued runs")

// Runner executes a named pipeline
type Runner interface {
	Run(ctx context.Context, name, agency string) (pipeline.Report, error)
}

// Dispatcher serialises pipeline runs. Runs are executed one at a time, in
// the order they were enqueued.
type Dispatcher interface {
	Start() error
	Stop() error

	Enqueue(ctx context.Context, name, agency string) (string, error)
	Schedule(ctx context.Context, name, agency string, interval time.Duration)
}

var tracer = otel.Tracer("transit-publisher/dispatch")

type action func()

type dispatcher struct {
	mu      sync.Mutex
	started bool
	runner  Runner

	queue chan action
}

func NewDispatcher(runner Runner, queueSize int) Dispatcher {
	if queueSize <= 0 {
		queueSize = 8
	}

	return &dispatcher{
		runner: runner,
		queue:  make(chan action, queueSize),
	}
}

func (d *dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("already started")
	}

	d.started = true

	go d.run()

	return nil
}

// Stop waits for the runs queued so far to complete
func (d *dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		done := make(chan bool)

		d.queue <- func() {
			close(d.queue)
			done <- true
		}

		<-done
		d.queue = make(chan action, cap(d.queue))
		d.started = false
	}

	return nil
}

// Enqueue queues a run and returns its id without waiting for it to start
func (d *dispatcher) Enqueue(ctx context.Context, name, agency string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return "", ErrNotStarted
	}

	runID := uuid.NewString()

	logger := logging.GetFromContext(ctx).With("run", runID, "pipeline", name)

	// the run outlives the request that triggered it
	runCtx, span := tracer.Start(
		tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)),
		"pipeline-run",
		trace.WithAttributes(attribute.String("run-id", runID), attribute.String("pipeline", name)),
	)
	runCtx = logging.NewContextWithLogger(runCtx, logger)

	run := func() {
		var err error
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		logger.Info("pipeline run started")

		var report pipeline.Report
		report, err = d.runner.Run(runCtx, name, agency)
		if err != nil {
			logger.Error("pipeline run failed", "err", err.Error(), "hint", pipeline.Hint(err))
			return
		}

		logger.Info("pipeline run done", "stages", len(report.Stages))
	}

	select {
	case d.queue <- run:
	default:
		span.End()
		return "", ErrQueueFull
	}

	return runID, nil
}

// Schedule enqueues a run every interval until ctx is cancelled
func (d *dispatcher) Schedule(ctx context.Context, name, agency string, interval time.Duration) {
	if interval <= 0 {
		logging.GetFromContext(ctx).Error("refusing to schedule pipeline runs", "pipeline", name, "interval", interval)
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.Enqueue(ctx, name, agency); err != nil {
					logging.GetFromContext(ctx).Warn("failed to schedule pipeline run", "pipeline", name, "err", err.Error())
				}
			}
		}
	}()
}

func (d *dispatcher) run() {
	for action := range d.queue {
		if action == nil {
			return
		}

		action()
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/transit-publisher/internal/pkg/application/dispatch"
	"github.com/diwise/transit-publisher/internal/pkg/application/pipeline"
	"github.com/diwise/transit-publisher/internal/pkg/presentation/api/auth"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("transit-publisher/api")

type runAccepted struct {
	ID string `json:"id"`
}

func RegisterHandlers(ctx context.Context, r chi.Router, policies io.Reader, dispatcher dispatch.Dispatcher) error {
	authorizer, err := auth.NewAuthorizer(ctx, policies)
	if err != nil {
		return fmt.Errorf("failed to create api authorizer: %w", err)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Logger(logging.GetFromContext(ctx)))
		r.Post("/pipelines/{pipeline}/runs", NewStartRunHandler(dispatcher, authorizer))
	})

	return nil
}

// Logger stores a trace enriched logger in the request context
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func NewStartRunHandler(dispatcher dispatch.Dispatcher, authorizer auth.Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "start-run")
		defer func() { span.End() }()

		name := chi.URLParam(r, "pipeline")
		agency := r.URL.Query().Get("agency")

		span.SetAttributes(attribute.String("pipeline", name))
		logger := logging.GetFromContext(ctx).With(slog.String("pipeline", name))

		if !pipeline.IsKnown(name) {
			http.Error(w, "no such pipeline", http.StatusNotFound)
			return
		}

		if err := authorizer.CheckAccess(ctx, r, name); err != nil {
			logger.Warn("access denied", "err", err.Error())
			if errors.Is(err, auth.ErrUnauthorized) {
				w.WriteHeader(http.StatusUnauthorized)
			} else {
				w.WriteHeader(http.StatusForbidden)
			}
			return
		}

		id, err := dispatcher.Enqueue(ctx, name, agency)
		if err != nil {
			logger.Error("unable to queue pipeline run", "err", err.Error())
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		logger.Info("pipeline run queued", "run_id", id, "agency", agency)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(runAccepted{ID: id})
	}
}

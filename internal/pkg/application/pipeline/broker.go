package pipeline

import (
	"context"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/transit-publisher/pkg/jsonvalue"
	"github.com/diwise/transit-publisher/pkg/ngsi"
	"github.com/diwise/transit-publisher/pkg/ost"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	StageFetchAgency              string = "FetchAgency"
	StageInsertAgency             string = "InsertAgency"
	StageFetchAndInsertRoutes     string = "FetchAndInsertRoutes"
	StageFetchAndInsertStops      string = "FetchAndInsertStops"
	StageFetchTripsFromRoutes     string = "FetchTripsFromRoutes"
	StageInsertTrips              string = "InsertTrips"
	StageFetchStopTimesFromRoutes string = "FetchStopTimesFromRoutes"
	StageInsertStopTimes          string = "InsertStopTimes"
)

const (
	TypeAgency   string = "Agency"
	TypeRoute    string = "Route"
	TypeStop     string = "Stop"
	TypeTrip     string = "Trip"
	TypeStopTime string = "StopTime"
)

// TransferToBroker copies an agency with its routes, stops, trips and stop
// times to the entity store. The first failing stage ends the run, entities
// published by earlier stages are left in place.
func (p *Pipelines) TransferToBroker(ctx context.Context, agencyName string) (report Report, err error) {
	report = Report{Pipeline: Broker}

	ctx, span := tracer.Start(ctx, "transfer-to-broker", trace.WithAttributes(attribute.String("agency", agencyName)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if p.store == nil {
		err = stageError(StageFetchAgency, fmt.Errorf("no context broker: %w", ErrNotConfigured))
		return
	}

	ctx = logging.NewContextWithLogger(ctx, logging.GetFromContext(ctx), "pipeline", Broker, "agency", agencyName)
	logger := logging.GetFromContext(ctx)

	done := func(stage string, count int) {
		report.Add(stage, count)
		logger.Info("stage done", "stage", stage, "count", count)
	}

	agency, err := p.source.GetAgency(ctx, agencyName)
	if err != nil {
		err = stageError(StageFetchAgency, err)
		return
	}
	done(StageFetchAgency, 1)

	agencyID := agency.GetString("id")

	if err = p.publish(ctx, []jsonvalue.Object{agency}, TypeAgency); err != nil {
		err = stageError(StageInsertAgency, err)
		return
	}
	done(StageInsertAgency, 1)

	routes, err := p.source.FetchByAgency(ctx, ost.Routes, agencyID, nil)
	if err == nil {
		err = p.publish(ctx, routes, TypeRoute)
	}
	if err != nil {
		err = stageError(StageFetchAndInsertRoutes, err)
		return
	}
	done(StageFetchAndInsertRoutes, len(routes))

	stops, err := p.source.FetchByAgency(ctx, ost.Stops, agencyID, nil)
	if err == nil {
		err = p.publish(ctx, stops, TypeStop)
	}
	if err != nil {
		err = stageError(StageFetchAndInsertStops, err)
		return
	}
	done(StageFetchAndInsertStops, len(stops))

	known, err := p.store.Query(ctx, TypeRoute, nil)
	if err != nil {
		err = stageError(StageFetchTripsFromRoutes, err)
		return
	}

	routeIDs := ngsi.ExtractIDs(known)
	if len(routeIDs) == 0 {
		logger.Warn("context broker knows no routes, skipping trips and stop times")
		return
	}

	trips, err := p.source.FetchByRoutes(ctx, ost.Trips, routeIDs)
	if err != nil {
		err = stageError(StageFetchTripsFromRoutes, err)
		return
	}
	done(StageFetchTripsFromRoutes, len(trips))

	if err = p.publish(ctx, trips, TypeTrip); err != nil {
		err = stageError(StageInsertTrips, err)
		return
	}
	done(StageInsertTrips, len(trips))

	stopTimes, err := p.source.FetchByRoutes(ctx, ost.StopTimes, routeIDs)
	if err != nil {
		err = stageError(StageFetchStopTimesFromRoutes, err)
		return
	}
	done(StageFetchStopTimesFromRoutes, len(stopTimes))

	if err = p.publish(ctx, stopTimes, TypeStopTime); err != nil {
		err = stageError(StageInsertStopTimes, err)
		return
	}
	done(StageInsertStopTimes, len(stopTimes))

	return
}

func (p *Pipelines) publish(ctx context.Context, records []jsonvalue.Object, entityType string) error {
	entities, err := ngsi.NormalizeAll(records, entityType)
	if err != nil {
		return err
	}

	return p.store.Publish(ctx, entities)
}

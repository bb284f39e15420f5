package pipeline

import (
	"context"
	"fmt"
	"net/url"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/transit-publisher/internal/pkg/application/config"
	"github.com/diwise/transit-publisher/internal/pkg/application/places"
	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/jsonvalue"
	"github.com/diwise/transit-publisher/pkg/ost"
)

const (
	StageFetchStops     string = "FetchStops"
	StageEnsureDataset  string = "EnsureDataset"
	StageEnsureResource string = "EnsureResource"
	StageBuildPlaces    string = "BuildPlaces"
	StageUpsertPlaces   string = "UpsertPlaces"
)

const placesFormat string = "json"

// TransferPlaces publishes the stops of the configured agencies as points of
// interest, enriched with neighbourhood, city and street address.
func (p *Pipelines) TransferPlaces(ctx context.Context) (report Report, err error) {
	report = Report{Pipeline: Places}

	ctx, span := tracer.Start(ctx, "transfer-places")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if p.catalog == nil {
		err = stageError(StageEnsureDataset, fmt.Errorf("no catalog: %w", ErrNotConfigured))
		return
	}

	ctx = logging.NewContextWithLogger(ctx, logging.GetFromContext(ctx), "pipeline", Places)
	logger := logging.GetFromContext(ctx)

	cfg := p.cfg.Places

	stops := make([][]jsonvalue.Object, len(cfg.Agencies))
	for i, agency := range cfg.Agencies {
		stops[i], err = p.fetchStops(ctx, agency)
		if err != nil {
			err = stageError(StageFetchStops, err)
			return
		}
		report.Add(StageFetchStops, len(stops[i]))
		logger.Info("fetched stops", "agency", agency.Name, "count", len(stops[i]))
	}

	dataset, err := p.catalog.EnsureDataset(ctx, cfg.Dataset)
	if err != nil {
		err = stageError(StageEnsureDataset, err)
		return
	}
	if dataset == nil {
		logger.Warn("skipping places, dataset is not available", "dataset", cfg.Dataset.Name)
		return
	}
	report.Add(StageEnsureDataset, 1)

	resource, err := p.catalog.EnsureResource(ctx, cfg.Resource, dataset, placesFormat, cfg.ResourceURL)
	if err != nil {
		err = stageError(StageEnsureResource, err)
		return
	}
	if resource == nil {
		logger.Warn("skipping places, resource is not available", "resource", cfg.Resource)
		return
	}
	report.Add(StageEnsureResource, 1)

	geocoder := p.newGeocoder()

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = ckan.DefaultUpsertBatchSize
	}

	// a rejected batch does not stop the remaining ones, the first rejection is
	// reported once every agency has been processed
	var rejected error

	for i, agency := range cfg.Agencies {
		owner := places.Agency{Name: agency.Name, Transport: agency.Transport, Website: agency.Website}
		upserted := 0

		logger.Info("started importing stops", "agency", agency.Name)

		for start := 0; start < len(stops[i]); start += batchSize {
			chunk := stops[i][start:min(start+batchSize, len(stops[i]))]

			records := p.buildPlaces(ctx, geocoder, chunk, owner, resource.ID)
			report.Add(StageBuildPlaces, len(records))

			if len(records) == 0 {
				continue
			}

			if err = p.catalog.UpsertRecords(ctx, resource.ID, records, []string{places.PrimaryKey}, places.Fields, batchSize); err != nil {
				logger.Error("failed to upsert places, continuing with the next batch", "agency", agency.Name, "from", start, "err", err.Error())
				if rejected == nil {
					rejected = err
				}
				continue
			}

			upserted += len(records)
			report.Add(StageUpsertPlaces, len(records))
		}

		logger.Info("stage done", "stage", StageUpsertPlaces, "agency", agency.Name, "count", upserted)
	}

	err = nil
	if rejected != nil {
		err = stageError(StageUpsertPlaces, rejected)
	}

	return
}

func (p *Pipelines) buildPlaces(ctx context.Context, geocoder Geocoder, stops []jsonvalue.Object, owner places.Agency, resourceID string) []map[string]any {
	logger := logging.GetFromContext(ctx)
	records := make([]map[string]any, 0, len(stops))

	for _, stop := range stops {
		lat, lon, err := places.Location(stop)
		if err != nil {
			logger.Warn("skipping stop", "err", err.Error())
			continue
		}

		where := p.source.WhereAt(ctx, lon, lat)
		address, _ := geocoder.Reverse(ctx, lat, lon)

		place, err := places.New(stop, owner, where, address, resourceID)
		if err != nil {
			logger.Warn("skipping stop", "err", err.Error())
			continue
		}

		records = append(records, place.Record())
	}

	return records
}

func (p *Pipelines) fetchStops(ctx context.Context, agency config.PlacesAgency) ([]jsonvalue.Object, error) {
	a, err := p.source.GetAgency(ctx, agency.Name)
	if err != nil {
		return nil, err
	}

	var extra url.Values
	if agency.BoundingBox != nil {
		extra = url.Values{
			"corner1": []string{agency.BoundingBox.Corner1},
			"corner2": []string{agency.BoundingBox.Corner2},
		}
	}

	return p.source.FetchByAgency(ctx, ost.Stops, a.GetString("id"), extra)
}

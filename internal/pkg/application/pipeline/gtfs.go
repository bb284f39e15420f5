package pipeline

import (
	"context"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/transit-publisher/internal/pkg/application/config"
	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/gtfs"
)

const (
	StageDownloadArchive string = "DownloadArchive"
	StageExtractArchive  string = "ExtractArchive"
	StageUpsertTables    string = "UpsertTables"
)

const tableFormat string = "csv"

// TransferGTFS loads the complete GTFS feed of every configured publisher
// into a catalog dataset, one datastore resource per table. Staged files are
// removed once the publisher is done.
func (p *Pipelines) TransferGTFS(ctx context.Context) (report Report, err error) {
	report = Report{Pipeline: GTFS}

	ctx, span := tracer.Start(ctx, "transfer-gtfs")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if p.catalog == nil {
		err = stageError(StageEnsureDataset, fmt.Errorf("no catalog: %w", ErrNotConfigured))
		return
	}

	ctx = logging.NewContextWithLogger(ctx, logging.GetFromContext(ctx), "pipeline", GTFS)

	for _, ds := range p.cfg.GTFS.Datasets {
		if err = p.transferFeed(ctx, ds, &report); err != nil {
			return
		}
	}

	return
}

func (p *Pipelines) transferFeed(ctx context.Context, feed config.GTFSDataset, report *Report) error {
	ctx = logging.NewContextWithLogger(ctx, logging.GetFromContext(ctx), "publisher", feed.Publisher, "dataset", feed.Dataset.Name)
	logger := logging.GetFromContext(ctx)

	dataset, err := p.catalog.EnsureDataset(ctx, feed.Dataset)
	if err != nil {
		return stageError(StageEnsureDataset, err)
	}
	if dataset == nil {
		logger.Warn("skipping publisher, dataset is not available")
		return nil
	}
	report.Add(StageEnsureDataset, 1)

	stage, err := gtfs.NewStage(p.cfg.Catalog.StagingDir, dataset.Name)
	if err != nil {
		return stageError(StageDownloadArchive, err)
	}

	defer func() {
		if cleanErr := stage.Clean(); cleanErr != nil {
			logger.Warn("failed to remove staged files", "err", cleanErr.Error())
		}
	}()

	archive, err := stage.Archive()
	if err != nil {
		return stageError(StageDownloadArchive, err)
	}

	size, err := p.source.DownloadGTFS(ctx, feed.Publisher, archive)
	archive.Close()
	if err != nil {
		return stageError(StageDownloadArchive, err)
	}
	logger.Info("downloaded archive", "bytes", size)

	files, err := stage.Extract()
	if err != nil {
		return stageError(StageExtractArchive, err)
	}
	report.Add(StageExtractArchive, len(files))

	for _, name := range stage.Present() {
		table, err := stage.ReadTable(name)
		if err != nil {
			return stageError(StageUpsertTables, err)
		}

		if table.Skipped > 0 {
			logger.Warn("skipped malformed rows", "table", name, "count", table.Skipped)
		}

		if len(table.Rows) == 0 {
			logger.Debug("skipping empty table", "table", name)
			continue
		}

		resource, err := p.catalog.EnsureResource(ctx, name, dataset, tableFormat, "")
		if err != nil {
			return stageError(StageEnsureResource, err)
		}
		if resource == nil {
			logger.Warn("skipping table, resource is not available", "table", name)
			continue
		}

		err = p.catalog.UpsertRecords(ctx, resource.ID, table.Records(), table.PrimaryKey(), fields(table), p.cfg.GTFS.BatchSize)
		if err != nil {
			return stageError(StageUpsertTables, fmt.Errorf("table %s: %w", name, err))
		}

		report.Add(StageUpsertTables, len(table.Rows))
		logger.Info("table loaded", "table", name, "count", len(table.Rows))
	}

	return nil
}

func fields(t gtfs.Table) []ckan.Field {
	f := make([]ckan.Field, 0, len(t.Columns))
	for _, c := range t.Columns {
		f = append(f, ckan.Field{ID: c.Name, Type: c.Type})
	}
	return f
}

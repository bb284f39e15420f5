package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/diwise/transit-publisher/internal/pkg/application/config"
	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/jsonvalue"
	"github.com/diwise/transit-publisher/pkg/ngsi"
	"github.com/diwise/transit-publisher/pkg/ost"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("transit-publisher/pipeline")

const (
	Broker string = "broker"
	Places string = "places"
	GTFS   string = "gtfs"
)

var ErrUnknownPipeline = fmt.Errorf("unknown pipeline")
var ErrNotConfigured = fmt.Errorf("sink not configured")

// Source is the transit data API
type Source interface {
	GetAgency(ctx context.Context, name string) (jsonvalue.Object, error)
	FetchByAgency(ctx context.Context, kind ost.Kind, agencyID string, extra url.Values) ([]jsonvalue.Object, error)
	FetchByRoutes(ctx context.Context, kind ost.Kind, routeIDs []string) ([]jsonvalue.Object, error)
	WhereAt(ctx context.Context, longitude, latitude float64) ost.WhereAt
	DownloadGTFS(ctx context.Context, publisher string, dst io.Writer) (int64, error)
}

// EntityStore is the context broker that receives the normalized entities
type EntityStore interface {
	Publish(ctx context.Context, entities []ngsi.Entity) error
	Query(ctx context.Context, entityType string, attributes []string) (*ngsi.Response, error)
}

type Catalog interface {
	EnsureDataset(ctx context.Context, spec ckan.DatasetSpec) (*ckan.Dataset, error)
	EnsureResource(ctx context.Context, name string, dataset *ckan.Dataset, format, location string) (*ckan.Resource, error)
	UpsertRecords(ctx context.Context, resourceID string, records []map[string]any, primaryKey []string, fields []ckan.Field, batchSize int) error
}

type Geocoder interface {
	Reverse(ctx context.Context, latitude, longitude float64) (string, bool)
}

// Pipelines moves data from the source to the entity store and the catalog.
// A run is sequential and blocking. Runs must not overlap, which is up to
// the caller to guarantee.
type Pipelines struct {
	cfg         *config.Config
	source      Source
	store       EntityStore
	catalog     Catalog
	newGeocoder func() Geocoder
}

// New creates the pipelines. The entity store and the catalog may be nil, in
// which case the pipelines that need them fail with ErrNotConfigured. A new
// geocoder is created for every places run.
func New(cfg *config.Config, source Source, store EntityStore, catalog Catalog, newGeocoder func() Geocoder) *Pipelines {
	return &Pipelines{
		cfg:         cfg,
		source:      source,
		store:       store,
		catalog:     catalog,
		newGeocoder: newGeocoder,
	}
}

// Run executes the named pipeline. The agency is only used by the broker
// pipeline and falls back to the configured one when empty.
func (p *Pipelines) Run(ctx context.Context, name, agency string) (Report, error) {
	switch name {
	case Broker:
		if agency == "" {
			agency = p.cfg.Agency
		}
		return p.TransferToBroker(ctx, agency)
	case Places:
		return p.TransferPlaces(ctx)
	case GTFS:
		return p.TransferGTFS(ctx)
	}

	return Report{Pipeline: name}, fmt.Errorf("%q: %w", name, ErrUnknownPipeline)
}

func IsKnown(name string) bool {
	return name == Broker || name == Places || name == GTFS
}

type StageCount struct {
	Stage string
	Count int
}

// Report lists how many records each stage of a run handled
type Report struct {
	Pipeline string
	Stages   []StageCount
}

func (r *Report) Add(stage string, count int) {
	for i := range r.Stages {
		if r.Stages[i].Stage == stage {
			r.Stages[i].Count += count
			return
		}
	}
	r.Stages = append(r.Stages, StageCount{Stage: stage, Count: count})
}

func (r Report) Count(stage string) int {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Count
		}
	}
	return 0
}

// StageError tells which stage aborted a run
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Hint maps an error to an explanation of what the operator can do about it
func Hint(err error) string {
	const unableToFetch = "Unable to fetch data, "
	const unableToInsert = "Unable to insert data, "

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ost.ErrMissingCredentials):
		return unableToFetch + "please check if you have an API key on your environment by executing the following command: echo $OST_SERVER_KEY"
	case errors.Is(err, ost.ErrInvalidCredentials):
		return unableToFetch + "please check if your key is a valid Server Key on www.ost.pt"
	case errors.Is(err, ost.ErrSourceUnavailable):
		return unableToFetch + "we're sorry but www.ost.pt seems to be down"
	case errors.Is(err, ost.ErrEndpointNotFound):
		return unableToFetch + "the requested API does not exist, please check the source base url"
	case errors.Is(err, ost.ErrAgencyNotFound):
		return unableToFetch + "there was some problem retrieving data about the agency"
	case errors.Is(err, ngsi.ErrEntityStoreRejected):
		return unableToInsert + err.Error()
	case errors.Is(err, ckan.ErrAccessDenied):
		return unableToInsert + "the catalog API key is invalid, please read the docs and change it"
	case errors.Is(err, ErrNotConfigured):
		return "please set FIWARE_HOST and CKAN_HOST or the corresponding configuration entries"
	}

	return unableToFetch + err.Error()
}

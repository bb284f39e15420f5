package pipeline

import (
	"fmt"

	"github.com/diwise/transit-publisher/internal/pkg/application/config"
	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/geocoding"
	"github.com/diwise/transit-publisher/pkg/ngsi"
	"github.com/diwise/transit-publisher/pkg/ost"
)

// NewFromConfig creates the pipelines with clients for every sink that has a
// host configured.
func NewFromConfig(cfg *config.Config) (*Pipelines, error) {
	source, err := ost.NewClient(cfg.Source.BaseURL, cfg.Source.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}

	var store EntityStore
	if cfg.Broker.Host != "" {
		broker, err := ngsi.NewClient(cfg.Broker.Host, ngsi.BatchSize(cfg.Broker.BatchSize), ngsi.Debug(cfg.Broker.Debug))
		if err != nil {
			return nil, fmt.Errorf("failed to create context broker client: %w", err)
		}
		store = broker
	}

	var catalog Catalog
	if cfg.Catalog.Host != "" {
		c, err := ckan.NewClient(cfg.Catalog.Host, cfg.Catalog.APIKey, ckan.StagingDir(cfg.Catalog.StagingDir))
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog client: %w", err)
		}
		catalog = c
	}

	providers, err := geocoding.NewProviders(cfg.Geocoding.Providers)
	if err != nil {
		return nil, err
	}

	newGeocoder := func() Geocoder {
		return geocoding.NewResolver(providers,
			geocoding.Timeout(cfg.Geocoding.TimeoutDuration()),
			geocoding.MaxTimeouts(cfg.Geocoding.MaxTimeouts),
			geocoding.MemoSize(cfg.Geocoding.MemoSize),
		)
	}

	return New(cfg, source, store, catalog, newGeocoder), nil
}

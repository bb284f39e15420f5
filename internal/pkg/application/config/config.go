package config

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/geocoding"
	"github.com/diwise/transit-publisher/pkg/ost"
	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v2"
)

const (
	TransportTrain string = "Train"
	TransportBus   string = "Bus"
)

type SourceConfig struct {
	BaseURL string `yaml:"baseURL" validate:"required,url"`
	Key     string `yaml:"key"`
}

type BrokerConfig struct {
	Host      string `yaml:"host"`
	BatchSize int    `yaml:"batchSize" validate:"gte=0"`
	Debug     bool   `yaml:"debug"`
}

type CatalogConfig struct {
	Host       string `yaml:"host" validate:"omitempty,url"`
	APIKey     string `yaml:"apiKey"`
	StagingDir string `yaml:"stagingDir" validate:"required"`
}

type GeocodingConfig struct {
	Providers   []geocoding.ProviderConfig `yaml:"providers" validate:"dive"`
	Timeout     int                        `yaml:"timeoutSeconds" validate:"gte=0"`
	MaxTimeouts int                        `yaml:"maxTimeouts" validate:"gte=0"`
	MemoSize    int                        `yaml:"memoSize" validate:"gte=0"`
}

func (g GeocodingConfig) TimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// BoundingBox limits a stop query to the box spanned by two "lon, lat" corners
type BoundingBox struct {
	Corner1 string `yaml:"corner1" validate:"required"`
	Corner2 string `yaml:"corner2" validate:"required"`
}

type PlacesAgency struct {
	Name        string       `yaml:"name" validate:"required"`
	Transport   string       `yaml:"transport" validate:"required,oneof=Train Bus"`
	Website     string       `yaml:"website" validate:"omitempty,url"`
	BoundingBox *BoundingBox `yaml:"boundingBox"`
}

type PlacesConfig struct {
	Dataset     ckan.DatasetSpec `yaml:"dataset"`
	Resource    string           `yaml:"resource" validate:"required"`
	ResourceURL string           `yaml:"resourceURL" validate:"omitempty,url"`
	Agencies    []PlacesAgency   `yaml:"agencies" validate:"dive"`
	BatchSize   int              `yaml:"batchSize" validate:"gte=0"`
}

type GTFSDataset struct {
	Publisher string           `yaml:"publisher" validate:"required"`
	Dataset   ckan.DatasetSpec `yaml:"dataset"`
}

type GTFSConfig struct {
	Datasets  []GTFSDataset `yaml:"datasets" validate:"dive"`
	BatchSize int           `yaml:"batchSize" validate:"gte=0"`
}

type Config struct {
	Agency    string          `yaml:"agency" validate:"required"`
	Source    SourceConfig    `yaml:"source"`
	Broker    BrokerConfig    `yaml:"broker"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Places    PlacesConfig    `yaml:"places"`
	GTFS      GTFSConfig      `yaml:"gtfs"`
}

// Default returns the configuration used for the Lisbon case
func Default() *Config {
	return &Config{
		Agency: "CP - Comboios de Portugal",
		Source: SourceConfig{
			BaseURL: ost.DefaultBaseURL,
		},
		Broker: BrokerConfig{
			BatchSize: 100,
		},
		Catalog: CatalogConfig{
			StagingDir: "data",
		},
		Geocoding: GeocodingConfig{
			Providers: []geocoding.ProviderConfig{
				{Type: geocoding.ProviderGoogle},
				{Type: geocoding.ProviderNominatim},
			},
			Timeout:     60,
			MaxTimeouts: geocoding.DefaultMaxTimeouts,
			MemoSize:    geocoding.DefaultMemoSize,
		},
		Places: PlacesConfig{
			Dataset: ckan.DatasetSpec{
				Name:  "fiware-ost-lisbon-case",
				Notes: "Lisbon Places from OST (bus and train stops)",
			},
			Resource:    "OST Places",
			ResourceURL: "https://api.ost.pt/stops/",
			Agencies: []PlacesAgency{
				{
					Name:      "CP - Comboios de Portugal",
					Transport: TransportTrain,
					Website:   "http://www.cp.pt",
					BoundingBox: &BoundingBox{
						Corner1: "-9.50052660716588, 38.6731469051283",
						Corner2: "-8.781861006420504, 39.31772866134264",
					},
				},
				{
					Name:      "CARRIS",
					Transport: TransportBus,
					Website:   "http://www.carris.pt",
				},
			},
			BatchSize: ckan.DefaultUpsertBatchSize,
		},
		GTFS: GTFSConfig{
			Datasets: []GTFSDataset{
				{Publisher: "Carris", Dataset: ckan.DatasetSpec{Name: "fiware-gtfs-carris", Notes: "GTFS for Carris"}},
				{Publisher: "ComboiosPortugal", Dataset: ckan.DatasetSpec{Name: "fiware-gtfs-cp", Notes: "GTFS for CP"}},
			},
			BatchSize: 250,
		},
	}
}

// LoadConfiguration reads a yaml configuration on top of the defaults. Hosts
// and keys found in the environment win over the file.
func LoadConfiguration(ctx context.Context, data io.Reader) (*Config, error) {
	cfg := Default()

	if data != nil {
		buf, err := io.ReadAll(data)
		if err != nil {
			return nil, err
		}

		if err = yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	cfg.Source.Key = env.GetVariableOrDefault(ctx, "OST_SERVER_KEY", cfg.Source.Key)
	cfg.Broker.Host = env.GetVariableOrDefault(ctx, "FIWARE_HOST", cfg.Broker.Host)
	cfg.Catalog.Host = env.GetVariableOrDefault(ctx, "CKAN_HOST", cfg.Catalog.Host)
	cfg.Catalog.APIKey = env.GetVariableOrDefault(ctx, "CKAN_API_KEY", cfg.Catalog.APIKey)

	cfg.Source.BaseURL = strings.TrimSuffix(cfg.Source.BaseURL, "/") + "/"

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

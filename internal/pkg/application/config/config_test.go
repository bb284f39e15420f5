package config

import (
	"bytes"
	"context"
	"testing"

	"github.com/matryer/is"
)

func TestLoadConfig(t *testing.T) {
	is, cfg := setupConfigTest(t, configFile)

	is.Equal(cfg.Agency, "CARRIS")
	is.Equal(cfg.Source.BaseURL, "https://ost.example.org/api/")
	is.Equal(cfg.Source.Key, "filekey")
	is.Equal(cfg.Broker.Host, "orion:1026")
	is.Equal(cfg.Broker.BatchSize, 1)
}

func TestLoadGeocodingChain(t *testing.T) {
	is, cfg := setupConfigTest(t, configFile)

	is.Equal(len(cfg.Geocoding.Providers), 3) // the file replaces the default chain
	is.Equal(cfg.Geocoding.Providers[1].Key, "key2")
	is.Equal(cfg.Geocoding.Providers[2].Type, "nominatim")
	is.Equal(cfg.Geocoding.TimeoutDuration().Seconds(), float64(60)) // kept from the defaults
}

func TestDefaultsAreUsedWithoutFile(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadConfiguration(context.Background(), nil)
	is.NoErr(err)

	is.Equal(cfg.Agency, "CP - Comboios de Portugal")
	is.Equal(cfg.Places.Resource, "OST Places")
	is.Equal(cfg.Places.BatchSize, 5)
	is.Equal(len(cfg.Places.Agencies), 2)
	is.Equal(cfg.Places.Agencies[0].BoundingBox.Corner1, "-9.50052660716588, 38.6731469051283")
	is.True(cfg.Places.Agencies[1].BoundingBox == nil) // carris stops are all in Lisbon
	is.Equal(cfg.GTFS.Datasets[1].Dataset.Name, "fiware-gtfs-cp")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("OST_SERVER_KEY", "envkey")
	t.Setenv("FIWARE_HOST", "orion.example.org")
	t.Setenv("CKAN_HOST", "https://ckan.example.org")
	t.Setenv("CKAN_API_KEY", "ckankey")

	is, cfg := setupConfigTest(t, configFile)

	is.Equal(cfg.Source.Key, "envkey")
	is.Equal(cfg.Broker.Host, "orion.example.org")
	is.Equal(cfg.Catalog.Host, "https://ckan.example.org")
	is.Equal(cfg.Catalog.APIKey, "ckankey")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	is := is.New(t)

	_, err := LoadConfiguration(context.Background(), bytes.NewBufferString(`
places:
  agencies:
    - name: Metro
      transport: Subway
`))
	is.True(err != nil) // transport must be Train or Bus

	_, err = LoadConfiguration(context.Background(), bytes.NewBufferString(`
geocoding:
  providers:
    - type: bing
`))
	is.True(err != nil)
}

func setupConfigTest(t *testing.T, data string) (*is.I, *Config) {
	is := is.New(t)
	cfg, err := LoadConfiguration(context.Background(), bytes.NewBufferString(data))
	is.NoErr(err)

	return is, cfg
}

var configFile string = `
agency: CARRIS
source:
  baseURL: https://ost.example.org/api
  key: filekey
broker:
  host: orion:1026
  batchSize: 1
geocoding:
  providers:
    - type: google
      key: key1
    - type: google
      key: key2
    - type: nominatim
`

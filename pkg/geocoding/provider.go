package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("transit-publisher/geocoding")

// Provider resolves a coordinate pair to a postal address. Implementations
// report failures as ErrTimeout, ErrQuotaExceeded or ErrServiceError so that
// the Resolver can decide what to do next.
type Provider interface {
	Name() string
	Reverse(ctx context.Context, latitude, longitude float64) (string, error)
}

const (
	ProviderGoogle    string = "google"
	ProviderNominatim string = "nominatim"
)

// ProviderConfig describes one entry in the fallback chain. The same provider
// may appear more than once with different keys.
type ProviderConfig struct {
	Type    string `yaml:"type" validate:"required,oneof=google nominatim"`
	Key     string `yaml:"key"`
	BaseURL string `yaml:"baseURL" validate:"omitempty,url"`
}

func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Type) {
	case ProviderGoogle:
		return NewGoogle(cfg.Key, cfg.BaseURL), nil
	case ProviderNominatim:
		return NewNominatim(cfg.BaseURL), nil
	}

	return nil, fmt.Errorf("unknown geocoding provider %q", cfg.Type)
}

func NewProviders(cfgs []ProviderConfig) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfgs))

	for _, cfg := range cfgs {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return providers, nil
}

func newHTTPClient() http.Client {
	return http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

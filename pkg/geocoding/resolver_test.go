package geocoding

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/matryer/is"
)

func TestQuotaFallsOverToNextProvider(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	googleKey1 := scripted("google", &calls, ErrQuotaExceeded)
	googleKey2 := scripted("google", &calls, ErrQuotaExceeded)
	osm := scripted("nominatim", &calls, nil)

	r := NewResolver([]Provider{googleKey1, googleKey2, osm})

	address, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(ok)
	is.Equal(address, "Rua Augusta, Lisboa")

	is.Equal(len(calls), 3)
	is.Equal(distinct(calls), 2)
	is.Equal(calls, []string{"google", "google", "nominatim"})
	is.Equal(r.Current(), "nominatim") // the resolver stays on the provider that worked
}

func TestExhaustedChainWrapsAroundWithoutAddress(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, ErrQuotaExceeded, nil)
	osm := scripted("nominatim", &calls, ErrQuotaExceeded)

	r := NewResolver([]Provider{google, osm})

	address, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(!ok)
	is.Equal(address, "")
	is.Equal(r.Current(), "google")

	// the next coordinate starts over with the first provider
	address, ok = r.Reverse(context.Background(), 38.71, -9.14)
	is.True(ok)
	is.Equal(address, "Rua Augusta, Lisboa")
	is.Equal(calls, []string{"google", "nominatim", "google"})
}

func TestDeniedProviderFallsOverWithoutBackingOff(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, NewDeniedError("google", "REQUEST_DENIED"))
	osm := scripted("nominatim", &calls, nil)

	r := NewResolver([]Provider{google, osm}, WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Hour)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	address, ok := r.Reverse(ctx, 38.7, -9.1)
	is.True(ok)
	is.Equal(address, "Rua Augusta, Lisboa")
	is.Equal(calls, []string{"google", "nominatim"})
	is.Equal(r.Current(), "nominatim")
}

func TestDefaultBackOffStartsAtInitialInterval(t *testing.T) {
	is := is.New(t)

	b := defaultBackOff().(*backoff.ExponentialBackOff)
	wait := b.NextBackOff()

	// randomization factor is 0.5 around the initial interval
	is.True(wait >= 2500*time.Millisecond)
	is.True(wait <= 7500*time.Millisecond)
}

func TestTimeoutsRetrySameProviderUntilBound(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, ErrTimeout, ErrTimeout, ErrTimeout, nil)
	osm := scripted("nominatim", &calls, nil)

	r := NewResolver([]Provider{google, osm}, MaxTimeouts(3))

	_, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(!ok)
	is.Equal(calls, []string{"google", "google", "google"})
}

func TestTimeoutThenSuccess(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, ErrTimeout, nil)

	r := NewResolver([]Provider{google})

	address, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(ok)
	is.Equal(address, "Rua Augusta, Lisboa")
	is.Equal(len(calls), 2)
}

func TestServiceErrorsBackOffAndRetry(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, ErrServiceError, ErrServiceError, nil)

	r := NewResolver([]Provider{google}, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	}))

	_, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(ok)
	is.Equal(len(calls), 3)
}

func TestServiceErrorsGiveUpWhenBackOffStops(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, ErrServiceError, ErrServiceError, ErrServiceError, nil)

	r := NewResolver([]Provider{google}, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1)
	}))

	_, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(!ok)
	is.Equal(len(calls), 2)
}

func TestResolvedCoordinatesAreRemembered(t *testing.T) {
	is := is.New(t)

	calls := []string{}
	google := scripted("google", &calls, nil, nil)

	r := NewResolver([]Provider{google})

	r.Reverse(context.Background(), 38.7, -9.1)
	address, ok := r.Reverse(context.Background(), 38.7, -9.1)
	is.True(ok)
	is.Equal(address, "Rua Augusta, Lisboa")
	is.Equal(len(calls), 1)
}

func TestNoProvidersMeansNoAddress(t *testing.T) {
	is := is.New(t)

	_, ok := NewResolver(nil).Reverse(context.Background(), 38.7, -9.1)
	is.True(!ok)
}

// scriptedProvider answers with the queued errors in order, a nil entry (or an
// empty queue) is a successful lookup.
type scriptedProvider struct {
	name    string
	results []error
	calls   *[]string
}

func scripted(name string, calls *[]string, results ...error) *scriptedProvider {
	return &scriptedProvider{name: name, results: results, calls: calls}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Reverse(ctx context.Context, latitude, longitude float64) (string, error) {
	*p.calls = append(*p.calls, p.name)

	if len(p.results) == 0 {
		return "Rua Augusta, Lisboa", nil
	}

	err := p.results[0]
	p.results = p.results[1:]

	if err != nil {
		return "", err
	}

	return "Rua Augusta, Lisboa", nil
}

func distinct(names []string) int {
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	return len(seen)
}

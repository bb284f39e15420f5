package geocoding

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const (
	DefaultTimeout     time.Duration = 60 * time.Second
	DefaultMaxTimeouts int           = 3
	DefaultMemoSize    int           = 4096
)

// Resolver walks an ordered chain of providers. It remembers which provider
// it is currently using between calls and must not be shared between
// pipeline runs or goroutines.
type Resolver struct {
	providers   []Provider
	index       int
	timeout     time.Duration
	maxTimeouts int
	newBackOff  func() backoff.BackOff
	memo        gcache.Cache
}

func Timeout(d time.Duration) func(*Resolver) {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// MaxTimeouts is the number of timed out attempts tolerated for a single
// coordinate before it is left without an address.
func MaxTimeouts(n int) func(*Resolver) {
	return func(r *Resolver) {
		if n > 0 {
			r.maxTimeouts = n
		}
	}
}

func WithBackOff(newBackOff func() backoff.BackOff) func(*Resolver) {
	return func(r *Resolver) {
		r.newBackOff = newBackOff
	}
}

func MemoSize(n int) func(*Resolver) {
	return func(r *Resolver) {
		if n > 0 {
			r.memo = gcache.New(n).LRU().Build()
		}
	}
}

func NewResolver(providers []Provider, options ...func(*Resolver)) *Resolver {
	r := &Resolver{
		providers:   providers,
		timeout:     DefaultTimeout,
		maxTimeouts: DefaultMaxTimeouts,
		newBackOff:  defaultBackOff,
		memo:        gcache.New(DefaultMemoSize).LRU().Build(),
	}

	for _, option := range options {
		option(r)
	}

	return r
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.Reset()
	return b
}

// Current returns the name of the provider the next lookup will start with
func (r *Resolver) Current() string {
	if len(r.providers) == 0 {
		return ""
	}
	return r.providers[r.index].Name()
}

// Reverse returns the address of a coordinate pair. Lookup failures are never
// returned to the caller, a coordinate that cannot be resolved simply has no
// address.
func (r *Resolver) Reverse(ctx context.Context, latitude, longitude float64) (string, bool) {
	if len(r.providers) == 0 {
		return "", false
	}

	key := strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
	if cached, err := r.memo.Get(key); err == nil {
		return cached.(string), true
	}

	logger := logging.GetFromContext(ctx)

	var b backoff.BackOff
	timeouts := 0

	for ctx.Err() == nil {
		provider := r.providers[r.index]

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		address, err := provider.Reverse(callCtx, latitude, longitude)
		cancel()

		switch {
		case err == nil:
			r.memo.Set(key, address)
			return address, true

		case errors.Is(err, ErrTimeout):
			timeouts++
			if timeouts >= r.maxTimeouts {
				logger.Warn("giving up on coordinates after repeated timeouts", "coords", key, "provider", provider.Name(), "attempts", timeouts)
				return "", false
			}
			logger.Debug("geocoder timed out, retrying", "coords", key, "provider", provider.Name())

		case errors.Is(err, ErrQuotaExceeded) || isPermanent(err):
			r.index++
			if r.index >= len(r.providers) {
				r.index = 0
				logger.Warn("all geocoders exhausted, leaving coordinates without address", "coords", key)
				return "", false
			}
			logger.Info("geocoder unavailable, trying next one", "err", err.Error(), "next", r.providers[r.index].Name())
			b = nil

		case errors.Is(err, ErrServiceError):
			if b == nil {
				b = backoff.WithContext(r.newBackOff(), ctx)
			}

			wait := b.NextBackOff()
			if wait == backoff.Stop {
				logger.Warn("geocoder keeps failing, leaving coordinates without address", "coords", key, "err", err.Error())
				return "", false
			}

			logger.Info("geocoder service error, backing off", "err", err.Error(), "wait", wait)

			select {
			case <-ctx.Done():
				return "", false
			case <-time.After(wait):
			}

		default:
			return "", false
		}
	}

	return "", false
}

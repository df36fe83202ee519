package marketdata

import (
	"context"
	"errors"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

var (
	// ErrUnknownProvider is returned when the configured provider type has no factory
	ErrUnknownProvider = errors.New("unknown provider type")
	// ErrProviderRegistered is returned when registering a duplicate provider type
	ErrProviderRegistered = errors.New("provider type already registered")
)

// Provider supplies the screener with market data. Implementations must be
// safe for concurrent use; the screener fetches snapshots from a worker pool.
type Provider interface {
	// FetchUniverse returns the tradable universe with one quote per symbol
	FetchUniverse(ctx context.Context) ([]models.Quote, error)

	// FetchSnapshot returns the full evaluation snapshot for one symbol:
	// quote fields, OHLCV history, order book and recent trades
	FetchSnapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error)

	// Close releases provider resources
	Close() error

	// Name returns the provider type (e.g. "http", "mock")
	Name() string
}

// Factory creates provider instances by type.
type Factory struct {
	factories map[string]func(config.MarketDataConfig) (Provider, error)
}

// NewFactory creates a factory with the built-in providers registered.
func NewFactory() *Factory {
	f := &Factory{
		factories: make(map[string]func(config.MarketDataConfig) (Provider, error)),
	}
	_ = f.Register("http", NewHTTPProvider)
	_ = f.Register("mock", NewMockProvider)
	return f
}

// Create builds a provider for the configured type.
func (f *Factory) Create(cfg config.MarketDataConfig) (Provider, error) {
	factoryFunc, exists := f.factories[cfg.Provider]
	if !exists {
		return nil, ErrUnknownProvider
	}
	return factoryFunc(cfg)
}

// Register adds a custom provider factory function.
func (f *Factory) Register(providerType string, factoryFunc func(config.MarketDataConfig) (Provider, error)) error {
	if _, exists := f.factories[providerType]; exists {
		return ErrProviderRegistered
	}
	f.factories[providerType] = factoryFunc
	return nil
}

// List returns the registered provider types.
func (f *Factory) List() []string {
	providers := make([]string, 0, len(f.factories))
	for providerType := range f.factories {
		providers = append(providers, providerType)
	}
	return providers
}

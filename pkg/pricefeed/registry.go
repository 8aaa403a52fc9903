package pricefeed

import (
	"fmt"
	"sort"

	"github.com/rxtech-lab/nsplit-trading/pkg/schema"
)

// ProviderInfo describes a supported provider.
type ProviderInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requiresAuth"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderBinance: {
		Name:         string(ProviderBinance),
		DisplayName:  "Binance",
		Description:  "Cryptocurrency spot prices from the Binance ticker endpoint",
		RequiresAuth: false,
	},
	ProviderPolygon: {
		Name:         string(ProviderPolygon),
		DisplayName:  "Polygon.io",
		Description:  "US equity last trades from Polygon.io",
		RequiresAuth: true,
	},
	ProviderRedis: {
		Name:         string(ProviderRedis),
		DisplayName:  "Redis",
		Description:  "Prices published to Redis keys by an external collector",
		RequiresAuth: false,
	},
	ProviderSimulator: {
		Name:         string(ProviderSimulator),
		DisplayName:  "Price simulator",
		Description:  "HTTP price simulator service",
		RequiresAuth: true,
	},
	ProviderRandomWalk: {
		Name:         string(ProviderRandomWalk),
		DisplayName:  "Random walk",
		Description:  "In-process random walk prices for demos and tests",
		RequiresAuth: false,
	},
}

// GetSupportedProviders returns the names of all providers, sorted.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}
	sort.Strings(providers)

	return providers
}

// GetProviderInfo returns metadata for a provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, fmt.Errorf("unsupported provider: %s", providerName)
	}

	return info, nil
}

// GetConfigSchema returns the JSON schema of a provider's configuration.
func GetConfigSchema(providerName string) (string, error) {
	switch ProviderType(providerName) {
	case ProviderBinance:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return schema.ToJSONSchema(BinanceConfig{})
	case ProviderPolygon:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return schema.ToJSONSchema(PolygonConfig{})
	case ProviderRedis:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return schema.ToJSONSchema(RedisConfig{})
	case ProviderSimulator:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return schema.ToJSONSchema(SimulatorConfig{})
	case ProviderRandomWalk:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return schema.ToJSONSchema(RandomWalkConfig{})
	default:
		return "", fmt.Errorf("unsupported provider: %s", providerName)
	}
}

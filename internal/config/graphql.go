package config

import "fmt"

// GraphQLConfig contains GraphQL API settings
type GraphQLConfig struct {
	Enabled       bool `mapstructure:"enabled"`       // Enable GraphQL API endpoint
	MaxDepth      int  `mapstructure:"max_depth"`     // Maximum query depth (default: 10)
	Introspection bool `mapstructure:"introspection"` // Enable GraphQL introspection
}

// Validate validates GraphQL configuration
func (gc *GraphQLConfig) Validate() error {
	if !gc.Enabled {
		return nil
	}

	if gc.MaxDepth < 1 {
		return fmt.Errorf("graphql max_depth must be at least 1, got: %d", gc.MaxDepth)
	}

	return nil
}

package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/fieldservice-locator/pkg/config"
	"github.com/zatekoja/fieldservice-locator/pkg/retry"
)

const (
	ProvidersCollection = "providers"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client, retrying the health check with exponential backoff
func NewClient(cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxTotalTimeout = 20 * time.Second
	err := retry.DoWithLog(
		context.Background(),
		retryConfig,
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			healthy, err := client.Health(ctx, 2*time.Second)
			if err != nil {
				return err
			}
			if !healthy {
				return fmt.Errorf("typesense reported unhealthy")
			}
			return nil
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("Typesense connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("connected to Typesense")
	return &Client{client: client}, nil
}

// NewClientFromTypesense wraps an existing client without a health check
func NewClientFromTypesense(client *typesense.Client) *Client {
	return &Client{client: client}
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// InitSchema ensures the providers collection exists. Text fields are indexed with
// infix enabled so substring queries match inside words.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := c.client.Collection(ProvidersCollection).Retrieve(ctx); err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: ProvidersCollection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "name", Type: "string", Infix: pointer.True()},
			{Name: "neighborhood", Type: "string", Infix: pointer.True(), Optional: pointer.True()},
			{Name: "city", Type: "string", Infix: pointer.True(), Optional: pointer.True(), Facet: pointer.True()},
			{Name: "state", Type: "string", Infix: pointer.True(), Optional: pointer.True(), Facet: pointer.True()},
			{Name: "regions", Type: "string[]", Infix: pointer.True(), Optional: pointer.True()},
			{Name: "roles", Type: "string[]", Infix: pointer.True(), Optional: pointer.True()},
			{Name: "location", Type: "geopoint", Optional: pointer.True()},
		},
	}

	if _, err := c.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", ProvidersCollection, err)
	}

	log.Info().Str("collection", ProvidersCollection).Msg("created Typesense collection")
	return nil
}

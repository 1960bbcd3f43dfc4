package export

import (
	"context"
	"fmt"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
	"github.com/jonesrussell/domain-profiler/internal/retry"
)

// NewClient creates an Elasticsearch client and verifies the connection.
func NewClient(ctx context.Context, cfg config.ElasticsearchConfig, log logger.Logger) (*es.Client, error) {
	addresses := make([]string, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		addresses = append(addresses, normalizeURL(addr))
	}

	clientConfig := es.Config{Addresses: addresses}
	switch {
	case cfg.APIKey != "":
		clientConfig.APIKey = cfg.APIKey
	case cfg.Username != "" && cfg.Password != "":
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.Strings("addresses", addresses))
	err = retry.Retry(ctx, retry.DefaultConfig(), func() error {
		res, pingErr := client.Ping(client.Ping.WithContext(ctx))
		if pingErr != nil {
			return pingErr
		}
		defer res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("ping failed: %s", res.String())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	return client, nil
}

func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// HTTPProvider reads aggregate statistics from the hospital backend API.
// Each category is served as a flat JSON object at <baseURL>/stats/<category>.
type HTTPProvider struct {
	logger     *zap.Logger
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the backend at baseURL
func NewHTTPProvider(logger *zap.Logger, baseURL, token string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPProvider{
		logger:  logger.Named("stats-provider"),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Stats fetches the statistics document for a category
func (p *HTTPProvider) Stats(ctx context.Context, category model.MetricCategory) (map[string]any, error) {
	url := fmt.Sprintf("%s/stats/%s", p.baseURL, category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("stats request for %s failed with status %d: %s",
			category, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode %s stats: %w", category, err)
	}

	p.logger.Debug("Fetched stats",
		zap.String("category", string(category)),
		zap.Int("fields", len(stats)))

	return stats, nil
}

// Field returns a fetcher reading one field of a category's statistics.
// Nested fields are addressed with dots, e.g. "icu.available".
func (p *HTTPProvider) Field(category model.MetricCategory, field string) Fetcher {
	return func(ctx context.Context) (any, error) {
		stats, err := p.Stats(ctx, category)
		if err != nil {
			return nil, err
		}
		return lookup(stats, field)
	}
}

func lookup(doc map[string]any, path string) (any, error) {
	var current any = doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s: %q is not an object", path, key)
		}
		current, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("field %s not present", path)
		}
	}
	return current, nil
}

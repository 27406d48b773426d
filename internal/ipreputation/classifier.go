package ipreputation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"relations-go/internal/config"
)

// Classification is the reputation verdict for a caller address.
type Classification struct {
	IsProxy bool `json:"isProxy"`
}

// Classifier looks up the reputation of an IP address.
type Classifier interface {
	Classify(ctx context.Context, ip string) (*Classification, error)
}

// httpClassifier queries an ipdata-style threat API:
// GET {endpoint}/{ip}?api-key=...&fields=threat
type httpClassifier struct {
	cfg    config.IPReputationConfig
	client *http.Client
}

// NewHTTPClassifier creates a Classifier backed by the configured provider.
func NewHTTPClassifier(cfg config.IPReputationConfig) Classifier {
	return &httpClassifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type threatResponse struct {
	Threat struct {
		IsProxy bool `json:"is_proxy"`
		IsTor   bool `json:"is_tor"`
	} `json:"threat"`
}

// Classify fetches the threat record for the address.
func (c *httpClassifier) Classify(ctx context.Context, ip string) (*Classification, error) {
	u := fmt.Sprintf("%s/%s?api-key=%s&fields=threat", c.cfg.Endpoint, url.PathEscape(ip), url.QueryEscape(c.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build ip reputation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ip reputation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip reputation provider returned status %d", resp.StatusCode)
	}

	var tr threatResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode ip reputation response: %w", err)
	}
	return &Classification{IsProxy: tr.Threat.IsProxy || tr.Threat.IsTor}, nil
}

const cacheKeyPrefix = "iprep:"

// cachedClassifier caches verdicts in Redis with a TTL, since one address
// tends to retry registration in bursts. Cache failures fall through to
// the underlying classifier.
type cachedClassifier struct {
	inner  Classifier
	client *redis.Client
	ttl    time.Duration
}

// NewCachedClassifier wraps a Classifier with a Redis verdict cache.
func NewCachedClassifier(inner Classifier, client *redis.Client, ttl time.Duration) Classifier {
	return &cachedClassifier{inner: inner, client: client, ttl: ttl}
}

// Classify consults the cache before the provider.
func (c *cachedClassifier) Classify(ctx context.Context, ip string) (*Classification, error) {
	key := cacheKeyPrefix + ip

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return &Classification{IsProxy: val == "1"}, nil
	}
	if err != redis.Nil {
		log.Printf("Warning: ip reputation cache read failed for %s: %v", ip, err)
	}

	cls, err := c.inner.Classify(ctx, ip)
	if err != nil {
		return nil, err
	}

	cached := "0"
	if cls.IsProxy {
		cached = "1"
	}
	if err := c.client.Set(ctx, key, cached, c.ttl).Err(); err != nil {
		log.Printf("Warning: ip reputation cache write failed for %s: %v", ip, err)
	}
	return cls, nil
}

package products

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Product is the slice of the catalog the saga needs to price an order.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type Client interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// HTTPClient resolves products from the catalog collaborator. On failure it
// falls back to the last-known-good copy, and past that to a zero-price
// placeholder so order building degrades instead of failing outright.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
	Log     *zap.Logger

	mu    sync.RWMutex
	cache map[string]Product
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 3 * time.Second},
		Log:     logger,
		cache:   make(map[string]Product),
	}
}

func (c *HTTPClient) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := c.fetch(ctx, id)
	if err != nil {
		c.mu.RLock()
		cached, ok := c.cache[id]
		c.mu.RUnlock()
		if ok {
			c.Log.Warn("product fetch failed, using cached copy", zap.String("product_id", id), zap.Error(err))
			return cached, nil
		}
		c.Log.Warn("product fetch failed, using placeholder", zap.String("product_id", id), zap.Error(err))
		return Product{ID: id, Name: "Product temporarily unavailable", Price: decimal.Zero}, nil
	}

	c.mu.Lock()
	c.cache[id] = p
	c.mu.Unlock()
	return p, nil
}

func (c *HTTPClient) fetch(ctx context.Context, id string) (Product, error) {
	url := fmt.Sprintf("%s/products/%s", c.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Product{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Product{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Product{}, fmt.Errorf("get product %s: status %d", id, resp.StatusCode)
	}
	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// StaticClient serves a fixed catalog; used by tests and local runs.
type StaticClient struct {
	mu       sync.RWMutex
	products map[string]Product
}

var _ Client = (*StaticClient)(nil)

func NewStaticClient(ps ...Product) *StaticClient {
	m := make(map[string]Product, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return &StaticClient{products: m}
}

func (c *StaticClient) GetProduct(_ context.Context, id string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product not found: %s", id)
	}
	return p, nil
}

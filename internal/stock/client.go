package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FallbackPolicy controls the secondary stock call. The primary convention is
// a delta decrement; the fallback writes an absolute quantity through the
// older endpoint. The fallback fires at most once and only for transport
// faults, never for an insufficient-stock rejection.
type FallbackPolicy struct {
	// Disabled turns the secondary convention off entirely.
	Disabled bool

	// BestEffort logs a fallback failure instead of returning it. Kept for
	// deployments that predate the strict abort-on-failure policy; the
	// default is strict.
	BestEffort bool

	// ShouldFallback decides per error. Nil means: everything except an
	// insufficient-stock rejection.
	ShouldFallback func(error) bool
}

func (p FallbackPolicy) shouldFallback(err error) bool {
	if p.Disabled {
		return false
	}
	if p.ShouldFallback != nil {
		return p.ShouldFallback(err)
	}
	return !errors.Is(err, ErrInsufficientStock)
}

// Client drives a remote stock collaborator over HTTP and implements Ledger.
// Reservations are tracked in a local log keyed by (order, product) so
// replays no-op and compensation knows what to hand back.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Policy  FallbackPolicy
	Log     *zap.Logger

	mu  sync.Mutex
	log map[string][]*reservation // order id -> reservations
}

var _ Ledger = (*Client)(nil)

func NewClient(baseURL string, policy FallbackPolicy, logger *zap.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Policy:  policy,
		Log:     logger,
		log:     make(map[string][]*reservation),
	}
}

func (c *Client) Reserve(ctx context.Context, orderID, productID string, qty int) error {
	c.mu.Lock()
	for _, r := range c.log[orderID] {
		if r.productID == productID && r.status != StatusReleased {
			c.mu.Unlock()
			return nil
		}
	}
	c.mu.Unlock()

	err := c.decreaseStock(ctx, orderID, productID, qty)
	if err != nil && c.Policy.shouldFallback(err) {
		c.Log.Warn("primary stock call failed, retrying via fallback convention",
			zap.String("product_id", productID), zap.Error(err))
		fbErr := c.putAbsoluteStock(ctx, productID, -qty)
		if fbErr != nil {
			if c.Policy.BestEffort {
				c.Log.Error("fallback stock call failed, continuing (best-effort policy)",
					zap.String("product_id", productID), zap.Error(fbErr))
			} else {
				return fmt.Errorf("reserve %s: %w (fallback: %v)", productID, err, fbErr)
			}
		}
		err = nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.log[orderID] = append(c.log[orderID], &reservation{
		productID: productID, qty: qty, status: StatusReserved,
	})
	c.mu.Unlock()
	return nil
}

func (c *Client) Release(ctx context.Context, productID string, qty int) error {
	err := c.increaseStock(ctx, productID, qty)
	if err != nil && c.Policy.shouldFallback(err) {
		if fbErr := c.putAbsoluteStock(ctx, productID, qty); fbErr != nil {
			return fmt.Errorf("release %s: %w (fallback: %v)", productID, err, fbErr)
		}
		err = nil
	}
	return err
}

func (c *Client) PendingRelease(_ context.Context, orderID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.log[orderID] {
		if r.status == StatusReserved {
			r.status = StatusPendingRelease
			n++
		}
	}
	return n, nil
}

func (c *Client) ReleaseOrder(ctx context.Context, orderID string) (int, error) {
	c.mu.Lock()
	var live []*reservation
	for _, r := range c.log[orderID] {
		if r.status != StatusReleased {
			live = append(live, r)
		}
	}
	c.mu.Unlock()

	n := 0
	for _, r := range live {
		if err := c.Release(ctx, r.productID, r.qty); err != nil {
			return n, err
		}
		c.mu.Lock()
		r.status = StatusReleased
		c.mu.Unlock()
		n++
	}
	return n, nil
}

// decreaseStock is the primary convention: a quantity delta.
func (c *Client) decreaseStock(ctx context.Context, orderID, productID string, qty int) error {
	url := fmt.Sprintf("%s/products/%s/decrease-stock?quantity=%d", c.BaseURL, productID, qty)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Idempotency-Key", orderID+":"+productID)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		// The collaborator reports shortage as a 400 with success=false.
		var body struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && !body.Success {
			return ErrInsufficientStock
		}
		return fmt.Errorf("decrease-stock %s: unexpected 400", productID)
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownProduct
	default:
		return fmt.Errorf("decrease-stock %s: status %d", productID, resp.StatusCode)
	}
}

func (c *Client) increaseStock(ctx context.Context, productID string, qty int) error {
	url := fmt.Sprintf("%s/products/%s/increase-stock?quantity=%d", c.BaseURL, productID, qty)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("increase-stock %s: status %d", productID, resp.StatusCode)
	}
	return nil
}

// putAbsoluteStock is the fallback convention: read the current quantity and
// write the new absolute value. delta may be negative (reserve) or positive
// (release).
func (c *Client) putAbsoluteStock(ctx context.Context, productID string, delta int) error {
	current, err := c.getStock(ctx, productID)
	if err != nil {
		return err
	}
	next := current + delta
	if next < 0 {
		return ErrInsufficientStock
	}

	body, _ := json.Marshal(map[string]int{"quantity": next})
	url := fmt.Sprintf("%s/products/%s/stock", c.BaseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("put stock %s: status %d", productID, resp.StatusCode)
	}
	return nil
}

func (c *Client) getStock(ctx context.Context, productID string) (int, error) {
	url := fmt.Sprintf("%s/products/%s", c.BaseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrUnknownProduct
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("get product %s: status %d", productID, resp.StatusCode)
	}
	var body struct {
		Stock int `json:"stock"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Stock, nil
}

// Package catalog lists the services a patient can book.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/carebook/internal/backend"
	"github.com/wolfman30/carebook/pkg/logging"
)

const servicesPath = "/api/services"

// Client reads the service listing endpoint. It does not cache or retry.
type Client struct {
	transport *backend.Client
	logger    *logging.Logger
}

// NewClient builds a catalog client over the given transport config.
func NewClient(cfg backend.Config) (*Client, error) {
	if cfg.Service == "" {
		cfg.Service = "catalog"
	}
	transport, err := backend.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{transport: transport, logger: logger}, nil
}

// ListServices fetches the listing in backend order.
func (c *Client) ListServices(ctx context.Context) ([]ServiceListing, error) {
	resp, err := c.transport.Do(ctx, backend.Request{Method: http.MethodGet, Path: servicesPath})
	if err != nil {
		var rejected *backend.RejectedError
		switch {
		case backend.Classify(err) == backend.KindNetwork:
			return nil, fmt.Errorf("catalog: %w: %w", backend.ErrUpstreamUnavailable, err)
		case errors.As(err, &rejected) && rejected.StatusCode >= 500:
			return nil, fmt.Errorf("catalog: %w: %w", backend.ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}

	wire, err := decodeEnvelope(resp.Body)
	if err != nil {
		c.logger.Warn("catalog: malformed listing", "error", err, "bytes", len(resp.Body))
		return nil, &backend.MalformedResponseError{Service: "catalog", RawBody: string(resp.Body), Err: err}
	}

	services := make([]ServiceListing, 0, len(wire))
	for _, w := range wire {
		l, err := w.toListing()
		if l.ID == "" {
			c.logger.Debug("catalog: skipping listing without id", "name", l.Name)
			continue
		}
		if err != nil {
			c.logger.Warn("catalog: skipping listing with invalid price", "service_id", l.ID, "error", err)
			continue
		}
		services = append(services, l)
	}
	return services, nil
}

// decodeEnvelope accepts a bare array, {"services": [...]}, or {"data": [...]}.
func decodeEnvelope(body []byte) ([]wireService, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var list []wireService
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped struct {
		Services []wireService   `json:"services"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Services != nil {
		return wrapped.Services, nil
	}
	data := bytes.TrimSpace(wrapped.Data)
	if len(data) == 0 || strings.EqualFold(string(data), "null") {
		return nil, errors.New("no services or data field")
	}
	// Some listing backends nest one level deeper: {"data": {"services": [...]}}.
	if data[0] == '{' {
		return decodeEnvelope(data)
	}
	var list []wireService
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

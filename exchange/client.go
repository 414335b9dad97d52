package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/locproof/model"
)

// clientTimeout bounds every exchange request end to end.
const clientTimeout = 30 * time.Second

// Client fetches exchange payloads from one node's data-plane server.
type Client struct {
	baseURL string
	nodeID  string
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient constructs a client for the server at baseURL. nodeID is sent as
// the caller identity header on every request.
func NewClient(baseURL, nodeID string) *Client {
	return &Client{
		baseURL: baseURL,
		nodeID:  nodeID,
		http:    &http.Client{Timeout: clientTimeout},
		tracer:  otel.Tracer("locproof/exchange"),
	}
}

// FetchAnnouncement retrieves the node's claimed location.
func (c *Client) FetchAnnouncement(ctx context.Context) (Announcement, error) {
	body, err := c.get(ctx, "/location")
	if err != nil {
		return Announcement{}, err
	}
	return DecodeAnnouncement(body)
}

// FetchRSSI retrieves the node's current per-peer median RSSI snapshot.
func (c *Client) FetchRSSI(ctx context.Context) ([]model.DeviceRSSI, error) {
	body, err := c.get(ctx, "/rssi")
	if err != nil {
		return nil, err
	}
	return DecodeRSSIReport(body)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.get",
		trace.WithAttributes(attribute.String("exchange.path", path)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	req.Header.Set(NodeIDHeader, c.nodeID)

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("exchange: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("exchange: GET %s: unexpected status %d", path, resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("exchange: GET %s: reading body: %w", path, err)
	}
	return body, nil
}

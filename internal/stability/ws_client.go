package stability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// segmentLoadMessage is the wire shape pushed by a grid telemetry feed
// over the WebSocket connection.
type segmentLoadMessage struct {
	SegmentID         string  `json:"segment_id"`
	CurrentFlops      float64 `json:"current_flops"`
	EnergyRateKW      float64 `json:"energy_rate_kw"`
	ThermalMarginPct  float64 `json:"thermal_margin_pct"`
	RenewableSharePct float64 `json:"renewable_share_pct"`
}

// WSTelemetryClient is the bundled live Telemetry: it opens one
// WebSocket connection to a grid telemetry feed and caches the most
// recent SegmentLoad pushed for each segment. A feed that never pushes
// a segment's load leaves GetSegmentLoad returning
// TelemetryUnavailable for that segment, rather than blocking.
type WSTelemetryClient struct {
	endpoint string
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[domain.SegmentID]domain.SegmentLoad

	conn     *websocket.Conn
	stopOnce sync.Once
	done     chan struct{}
}

// NewWSTelemetryClient creates a client that will connect to endpoint
// (a ws:// or wss:// URL) once Start is called.
func NewWSTelemetryClient(endpoint string, logger *slog.Logger) *WSTelemetryClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTelemetryClient{
		endpoint: endpoint,
		logger:   logger.With("component", "stability.WSTelemetryClient"),
		cache:    make(map[domain.SegmentID]domain.SegmentLoad),
		done:     make(chan struct{}),
	}
}

// Start dials the telemetry feed and begins caching pushed segment
// loads in the background. It returns once the initial connection
// succeeds; subsequent reconnects happen silently in the background.
func (c *WSTelemetryClient) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return apierr.Wrap(apierr.TelemetryUnavailable, "failed to connect to telemetry feed", err)
	}
	c.conn = conn

	go c.readLoop()
	return nil
}

func (c *WSTelemetryClient) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		var msg segmentLoadMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Warn("telemetry feed read failed, reconnecting", "error", err)
			c.reconnect()
			continue
		}

		c.mu.Lock()
		c.cache[domain.SegmentID(msg.SegmentID)] = domain.SegmentLoad{
			SegmentID:         domain.SegmentID(msg.SegmentID),
			CurrentFlops:      msg.CurrentFlops,
			EnergyRateKW:      msg.EnergyRateKW,
			ThermalMarginPct:  msg.ThermalMarginPct,
			RenewableSharePct: msg.RenewableSharePct,
		}
		c.mu.Unlock()
	}
}

func (c *WSTelemetryClient) reconnect() {
	_ = c.conn.Close()
	for backoff := time.Second; ; backoff *= 2 {
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.endpoint, nil)
		if err != nil {
			c.logger.Warn("telemetry feed reconnect failed", "error", err)
			continue
		}
		c.conn = conn
		c.logger.Info("telemetry feed reconnected")
		return
	}
}

// GetSegmentLoad implements Telemetry, returning the most recently
// cached push for segment.
func (c *WSTelemetryClient) GetSegmentLoad(ctx context.Context, segment domain.SegmentID) (domain.SegmentLoad, error) {
	c.mu.RLock()
	load, ok := c.cache[segment]
	c.mu.RUnlock()
	if !ok {
		return domain.SegmentLoad{}, apierr.New(apierr.TelemetryUnavailable, fmt.Sprintf("no telemetry received yet for segment %q", segment))
	}
	return load, nil
}

// Close stops the read loop and closes the connection.
func (c *WSTelemetryClient) Close() error {
	c.stopOnce.Do(func() { close(c.done) })
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

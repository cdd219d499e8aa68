package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"OracleFeed/internal/domain/models"
	drepo "OracleFeed/internal/domain/repository"
	"OracleFeed/pkg/logger"
	"OracleFeed/pkg/util"
)

// WSStream implements a MarketStream over an exchange WebSocket feed that
// speaks the subscribe/trade frame protocol (Finnhub, Binance combined
// streams and most CEX tick feeds fit this shape).
type WSStream struct {
	name           string
	url            string
	pairs          []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewWSStream creates a WebSocket-backed MarketStream.
func NewWSStream(name, url string, pairs []string, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) drepo.MarketStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &WSStream{
		name:           name,
		url:            url,
		pairs:          pairs,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         lgr,
	}
}

func (s *WSStream) Name() string { return s.name }

// Connect establishes the WebSocket connection.
func (s *WSStream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%s connect: %w", s.name, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Info("exchange connected", logger.String("exchange", s.name))
	}
	return nil
}

// Subscribe subscribes to the configured pairs.
func (s *WSStream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	conn, connected := s.conn, s.connected
	s.mu.Unlock()
	if conn == nil || !connected {
		return fmt.Errorf("%s not connected", s.name)
	}
	for _, pair := range s.pairs {
		msg := map[string]string{"type": "subscribe", "symbol": pair}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", pair, err)
		}
	}
	return nil
}

type wsTick struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
	C float64 `json:"c,omitempty"`
}

type wsFrame struct {
	Type string   `json:"type"`
	Data []wsTick `json:"data"`
}

// Read streams normalized price updates and errors. The update channel is
// buffered; ticks are dropped on backpressure rather than stalling the read
// loop.
func (s *WSStream) Read(ctx context.Context) (<-chan *models.PriceUpdate, <-chan error) {
	updates := make(chan *models.PriceUpdate, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(updates)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("%s conn nil", s.name)
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("%s read: %w", s.name, err)
					return
				}
				var frame wsFrame
				if err := json.Unmarshal(b, &frame); err != nil {
					// ignore non-tick frames
					continue
				}
				if frame.Type != "trade" {
					continue
				}
				for _, d := range frame.Data {
					u := s.normalize(d)
					if u == nil {
						continue
					}
					select {
					case updates <- u:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return updates, errs
}

func (s *WSStream) normalize(d wsTick) *models.PriceUpdate {
	if d.S == "" || d.P <= 0 || d.T <= 0 {
		return nil
	}
	conf := d.C
	if conf <= 0 || conf > 1 {
		conf = 1
	}
	return &models.PriceUpdate{
		Symbol:     util.NormalizePair(d.S),
		Price:      d.P,
		Timestamp:  d.T,
		Source:     s.name,
		Volume:     d.V,
		Confidence: conf,
	}
}

// Reconnect closes and reconnects.
func (s *WSStream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *WSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (s *WSStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
